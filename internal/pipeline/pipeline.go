// Package pipeline runs one recording session: capture, downmix, speech
// detection, resampling and streaming, then injection of the final text.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/config"
	"github.com/leonardotrapani/audioflow/internal/events"
	"github.com/leonardotrapani/audioflow/internal/injection"
	"github.com/leonardotrapani/audioflow/internal/observe"
	"github.com/leonardotrapani/audioflow/internal/resample"
	"github.com/leonardotrapani/audioflow/internal/transcriber"
	"github.com/leonardotrapani/audioflow/internal/vad"
	"github.com/leonardotrapani/audioflow/internal/wsclient"
)

type Status string
type Action string

const (
	Idle       Status = "idle"
	Connecting Status = "connecting"
	Recording  Status = "recording"
	Finalizing Status = "finalizing"
	Injecting  Status = "injecting"
)

const (
	// Finish stops capture, waits for the last transcript and injects it.
	Finish Action = "finish"
	// Cancel drops the session without injecting anything.
	Cancel Action = "cancel"
	// Commit finalizes the current utterance and keeps recording.
	Commit Action = "commit"
)

var ErrNoBackend = errors.New("no audio backend configured")

const audioBuffer = 64

// Flags are the runtime switches other components read without locking.
type Flags struct {
	recording atomic.Bool
	connected atomic.Bool
}

func (f *Flags) Recording() bool      { return f.recording.Load() }
func (f *Flags) SetRecording(on bool) { f.recording.Store(on) }
func (f *Flags) Connected() bool      { return f.connected.Load() }
func (f *Flags) SetConnected(on bool) { f.connected.Store(on) }

// Result is the outcome of a finished run.
type Result struct {
	ID   string
	Text string
	Err  error
}

type Pipeline interface {
	Run(ctx context.Context)
	Stop()
	Status() Status
	ID() string
	GetActionCh() chan<- Action
	Done() <-chan struct{}
	Result() Result
}

type Option func(*pipeline)

// WithBackend sets the capture backend. It is required.
func WithBackend(b audio.Backend) Option {
	return func(p *pipeline) { p.backend = b }
}

func WithInjectorFactory(f func(injection.Config) (injection.Injector, error)) Option {
	return func(p *pipeline) { p.newInjector = f }
}

func WithDispatcher(d *events.Dispatcher) Option {
	return func(p *pipeline) { p.dispatcher = d }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(p *pipeline) { p.metrics = m }
}

func WithFlags(f *Flags) Option {
	return func(p *pipeline) { p.flags = f }
}

type pipeline struct {
	config *config.Config
	id     string

	backend     audio.Backend
	newInjector func(injection.Config) (injection.Injector, error)
	dispatcher  *events.Dispatcher
	metrics     *observe.Metrics
	flags       *Flags

	mu     sync.RWMutex
	status Status
	result Result

	actionCh chan Action
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
}

func New(cfg *config.Config, opts ...Option) Pipeline {
	p := &pipeline{
		config:      cfg,
		id:          uuid.NewString(),
		newInjector: injection.NewInjector,
		metrics:     observe.Nop(),
		flags:       &Flags{},
		status:      Idle,
		actionCh:    make(chan Action, 4),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.result.ID = p.id
	return p
}

func (p *pipeline) ID() string { return p.id }

func (p *pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *pipeline) GetActionCh() chan<- Action {
	return p.actionCh
}

func (p *pipeline) Done() <-chan struct{} {
	return p.done
}

// Result is valid once Done is closed.
func (p *pipeline) Result() Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.result
}

// Stop cancels the run and waits for it to exit.
func (p *pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *pipeline) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(runCtx)
}

func (p *pipeline) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
	p.publish(events.State(string(s)))
}

func (p *pipeline) publish(ev events.Event) {
	if p.dispatcher != nil {
		p.dispatcher.Publish(ev)
	}
}

func (p *pipeline) fail(ctx context.Context, err error) {
	log.Printf("Pipeline[%s]: %v", p.short(), err)
	ev := events.FromError(err)
	p.metrics.RecordError(ctx, ev.Code)
	p.publish(ev)
}

func (p *pipeline) short() string { return p.id[:8] }

func (p *pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.done)

	endSession := p.metrics.SessionStarted(ctx)
	defer endSession()

	text, err := p.session(ctx)

	p.mu.Lock()
	p.result.Text = text
	p.result.Err = err
	p.mu.Unlock()

	p.flags.SetRecording(false)
	p.flags.SetConnected(false)
	p.setStatus(Idle)
	log.Printf("Pipeline[%s]: done", p.short())
}

func (p *pipeline) session(ctx context.Context) (string, error) {
	if p.backend == nil {
		p.fail(ctx, ErrNoBackend)
		return "", ErrNoBackend
	}

	log.Printf("Pipeline[%s]: starting session", p.short())
	p.setStatus(Connecting)

	captureCfg := p.config.ToCaptureConfig()
	batch, err := resample.NewBatch(captureCfg.SampleRate, config.StreamSampleRate)
	if err != nil {
		p.fail(ctx, err)
		return "", err
	}

	client := wsclient.New(p.config.ToClientConfig())
	client.OnStateChange(func(s wsclient.State) {
		p.flags.SetConnected(s.IsConnected())
		p.metrics.RecordConnectionState(ctx, s.Kind.String())
		p.publish(events.FromConnection(s))
	})
	streamer := transcriber.NewStreamer(
		transcriber.NewSession(client, p.config.ToSessionConfig()),
		p.config.Connection.KeepAliveInterval,
	)

	audioCh := make(chan []float32, audioBuffer)
	evs, err := streamer.Start(ctx, audioCh)
	if err != nil {
		p.fail(ctx, err)
		return "", err
	}

	capturer := audio.NewCapturer(p.backend, captureCfg)
	if err := capturer.Start(); err != nil {
		streamer.Abort()
		p.fail(ctx, err)
		return "", err
	}

	var dump *audio.WAVDump
	if path := p.config.Recording.DumpPath; path != "" {
		if dump, err = audio.NewWAVDump(path, captureCfg.SampleRate, 1); err != nil {
			log.Printf("Pipeline[%s]: audio dump disabled: %v", p.short(), err)
			dump = nil
		}
	}

	p.flags.SetRecording(true)
	p.setStatus(Recording)

	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()

	cons := p.newConsumer(capturer, batch, streamer, dump, audioCh)

	var g errgroup.Group
	captureDone := make(chan struct{})
	streamDone := make(chan struct{})
	var captureErr error
	g.Go(func() error {
		defer close(captureDone)
		captureErr = p.capture(captureCtx, cons)
		return captureErr
	})
	g.Go(func() error {
		defer close(streamDone)
		p.forward(ctx, evs)
		return nil
	})

	finish := p.wait(ctx, streamer, captureDone, streamDone)

	stopCapture()
	<-captureDone
	if err := capturer.Stop(); err != nil {
		log.Printf("Pipeline[%s]: %v", p.short(), err)
	}
	// samples written after the last tick still belong to the recording
	if finish && captureErr == nil {
		if err := cons.drain(ctx); err != nil {
			log.Printf("Pipeline[%s]: final drain: %v", p.short(), err)
		}
	}
	if dropped := capturer.Dropped(); dropped > 0 {
		p.metrics.DroppedSamples.Add(ctx, int64(dropped),
			metric.WithAttributes(attribute.String("stage", "capture")))
	}
	p.flags.SetRecording(false)
	if dump != nil {
		if err := dump.Close(); err != nil {
			log.Printf("Pipeline[%s]: close audio dump: %v", p.short(), err)
		}
	}

	var streamErr error
	if finish {
		p.setStatus(Finalizing)
		if tail, err := batch.Flush(); err == nil && len(tail) > 0 {
			p.send(ctx, audioCh, tail)
		}
		close(audioCh)

		start := time.Now()
		finalizeCtx, cancel := context.WithTimeout(ctx, p.config.Connection.FinalizeTimeout)
		streamErr = streamer.Stop(finalizeCtx)
		cancel()
		p.metrics.FinalizeDuration.Record(ctx, time.Since(start).Seconds())
	} else {
		close(audioCh)
		streamer.Abort()
	}
	_ = g.Wait()

	if captureErr != nil {
		p.fail(ctx, captureErr)
		return streamer.FinalText(), captureErr
	}
	if streamErr != nil {
		// the streamer reports its own failures as error events
		return streamer.FinalText(), streamErr
	}
	if !finish {
		log.Printf("Pipeline[%s]: session cancelled", p.short())
		return "", context.Canceled
	}

	text := streamer.FinalText()
	if text == "" {
		log.Printf("Pipeline[%s]: no speech transcribed", p.short())
		return "", nil
	}
	if err := p.inject(ctx, text); err != nil {
		return text, err
	}
	return text, nil
}

// wait blocks until the session should end and reports whether pending
// transcripts should be finalized and injected.
func (p *pipeline) wait(ctx context.Context, streamer *transcriber.Streamer, captureDone, streamDone <-chan struct{}) bool {
	timer := time.NewTimer(p.config.Recording.Timeout)
	defer timer.Stop()

	for {
		select {
		case action := <-p.actionCh:
			log.Printf("Pipeline[%s]: received action: %s", p.short(), action)
			switch action {
			case Finish:
				return true
			case Cancel:
				return false
			case Commit:
				if err := streamer.Commit(); err != nil {
					log.Printf("Pipeline[%s]: commit failed: %v", p.short(), err)
				}
			}

		case <-timer.C:
			log.Printf("Pipeline[%s]: recording timeout reached", p.short())
			return true

		case <-captureDone:
			return false

		case <-streamDone:
			// streaming gave up; keep what was committed
			return true

		case <-ctx.Done():
			return false
		}
	}
}

// consumer moves audio from the capture ring buffer to the stream. Every
// frame goes through the detector so no Ending pulse is missed.
type consumer struct {
	p          *pipeline
	capturer   *audio.Capturer
	detector   *vad.Detector
	batch      *resample.Batch
	streamer   *transcriber.Streamer
	dump       *audio.WAVDump
	audioCh    chan<- []float32
	maxSamples int
}

func (p *pipeline) newConsumer(capturer *audio.Capturer, batch *resample.Batch,
	streamer *transcriber.Streamer, dump *audio.WAVDump, audioCh chan<- []float32) *consumer {
	cfg := capturer.Config()
	return &consumer{
		p:          p,
		capturer:   capturer,
		detector:   vad.New(p.config.ToVADConfig()),
		batch:      batch,
		streamer:   streamer,
		dump:       dump,
		audioCh:    audioCh,
		maxSamples: cfg.FramesPerBuffer() * cfg.Channels,
	}
}

// capture drains the ring buffer once per callback period.
func (p *pipeline) capture(ctx context.Context, c *consumer) error {
	ticker := time.NewTicker(c.capturer.Config().BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := c.drain(ctx); err != nil {
			return err
		}
	}
}

// drain processes every frame currently buffered.
func (c *consumer) drain(ctx context.Context) error {
	p := c.p
	for {
		frame, ok := c.capturer.ReadFrame(c.maxSamples)
		if !ok {
			return nil
		}
		mono := frame.ToMono()
		p.metrics.CapturedSamples.Add(ctx, int64(len(mono.Samples)))

		if c.dump != nil {
			if err := c.dump.Write(mono.Samples); err != nil {
				log.Printf("Pipeline[%s]: audio dump failed: %v", p.short(), err)
				c.dump = nil
			}
		}

		state := c.detector.Detect(mono.Samples)
		if p.dispatcher != nil {
			p.dispatcher.TryPublish(events.Level(c.detector.EnergyDB(), state == vad.Speech))
		}
		if state == vad.Ending {
			p.metrics.SpeechSegments.Add(ctx, 1)
			if p.config.VAD.CommitOnSilence {
				if err := c.streamer.Commit(); err != nil {
					log.Printf("Pipeline[%s]: commit on silence failed: %v", p.short(), err)
				}
			}
		}

		out, err := c.batch.Process(mono.Samples)
		if err != nil {
			return fmt.Errorf("resample: %w", err)
		}
		if len(out) > 0 {
			p.send(ctx, c.audioCh, out)
		}
	}
}

// send never blocks capture; a stalled connection loses audio instead.
func (p *pipeline) send(ctx context.Context, audioCh chan<- []float32, chunk []float32) {
	select {
	case audioCh <- chunk:
		p.metrics.AudioChunks.Add(ctx, 1)
	default:
		p.metrics.DroppedSamples.Add(ctx, int64(len(chunk)),
			metric.WithAttributes(attribute.String("stage", "stream")))
	}
}

func (p *pipeline) forward(ctx context.Context, evs <-chan transcriber.Event) {
	for ev := range evs {
		switch ev.Kind {
		case transcriber.PartialTranscript:
			p.metrics.RecordTranscript(ctx, false)
		case transcriber.CommittedTranscript:
			p.metrics.RecordTranscript(ctx, true)
		case transcriber.Error:
			p.metrics.RecordError(ctx, ev.Code)
		}
		if out, ok := events.FromSession(ev); ok {
			p.publish(out)
		}
	}
}

func (p *pipeline) inject(ctx context.Context, text string) error {
	if !p.config.Injection.Enabled {
		return nil
	}
	p.setStatus(Injecting)

	injector, err := p.newInjector(p.config.ToInjectionConfig())
	if err != nil {
		err = fmt.Errorf("create injector: %w", err)
		p.fail(ctx, err)
		return err
	}
	if err := injector.Inject(ctx, text); err != nil {
		err = fmt.Errorf("inject: %w", err)
		p.fail(ctx, err)
		return err
	}
	log.Printf("Pipeline[%s]: injected %d characters", p.short(), len(text))
	return nil
}
