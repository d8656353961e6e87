// Package observe holds the OpenTelemetry instruments for the capture and
// streaming pipeline and exposes them for Prometheus scraping.
//
// Tests should build Metrics with NewMetrics and their own
// metric.MeterProvider to avoid cross-test pollution.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/leonardotrapani/audioflow"

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// CapturedSamples counts samples read from the capture ring buffer.
	CapturedSamples metric.Int64Counter

	// DroppedSamples counts samples the capture callback could not buffer.
	DroppedSamples metric.Int64Counter

	// SpeechSegments counts VAD speech segments that reached Ending.
	SpeechSegments metric.Int64Counter

	// AudioChunks counts resampled chunks handed to the streamer.
	AudioChunks metric.Int64Counter

	// Transcripts counts transcript events. Use with attribute
	//   attribute.Bool("final", ...)
	Transcripts metric.Int64Counter

	// FinalizeDuration tracks the time from the final commit to the
	// committed transcript.
	FinalizeDuration metric.Float64Histogram

	// SessionDuration tracks recording session length.
	SessionDuration metric.Float64Histogram

	// ConnectionStates counts connection state transitions. Use with
	// attribute.String("state", ...)
	ConnectionStates metric.Int64Counter

	// Errors counts reported errors. Use with attribute.String("code", ...)
	Errors metric.Int64Counter

	// ActiveSessions is the number of recording sessions in progress.
	ActiveSessions metric.Int64UpDownCounter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

var sessionBuckets = []float64{
	1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates every instrument on mp's meter.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CapturedSamples, err = m.Int64Counter("audioflow.capture.samples",
		metric.WithDescription("Samples read from the capture buffer."),
	); err != nil {
		return nil, err
	}
	if met.DroppedSamples, err = m.Int64Counter("audioflow.capture.dropped_samples",
		metric.WithDescription("Samples dropped because the capture buffer was full."),
	); err != nil {
		return nil, err
	}
	if met.SpeechSegments, err = m.Int64Counter("audioflow.vad.speech_segments",
		metric.WithDescription("Completed speech segments."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunks, err = m.Int64Counter("audioflow.stream.audio_chunks",
		metric.WithDescription("Resampled audio chunks sent for transcription."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("audioflow.transcripts",
		metric.WithDescription("Transcript events received."),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("audioflow.finalize.duration",
		metric.WithDescription("Time from the final commit to the committed transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("audioflow.session.duration",
		metric.WithDescription("Length of recording sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectionStates, err = m.Int64Counter("audioflow.connection.state_changes",
		metric.WithDescription("Connection state transitions."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("audioflow.errors",
		metric.WithDescription("Errors by code."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("audioflow.sessions.active",
		metric.WithDescription("Recording sessions in progress."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Nop returns instruments that record nothing.
func Nop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordTranscript(ctx context.Context, final bool) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("final", final)))
}

func (m *Metrics) RecordConnectionState(ctx context.Context, state string) {
	m.ConnectionStates.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

func (m *Metrics) RecordError(ctx context.Context, code string) {
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// SessionStarted marks a session active and returns a func that ends it.
func (m *Metrics) SessionStarted(ctx context.Context) func() {
	start := time.Now()
	m.ActiveSessions.Add(ctx, 1)
	return func() {
		m.ActiveSessions.Add(ctx, -1)
		m.SessionDuration.Record(ctx, time.Since(start).Seconds())
	}
}
