package config

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/leonardotrapani/audioflow/internal/apperror"
	"github.com/leonardotrapani/audioflow/internal/injection"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = apperror.ErrInvalidConfig

var languageCode = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2,4})?$`)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// Validate checks every section. A missing API key is reported here so the
// daemon can start with a warning and pick the key up on reload.
func (c *Config) Validate() error {
	if err := c.validateRecording(); err != nil {
		return err
	}
	if err := c.validateVAD(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateConnection(); err != nil {
		return err
	}
	if err := c.validateInjection(); err != nil {
		return err
	}

	switch c.Notifications.Type {
	case "desktop", "log", "none":
	default:
		return invalid("notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return invalid("metrics.address required when metrics.enabled = true")
	}
	return nil
}

func (c *Config) validateRecording() error {
	r := c.Recording
	switch r.Backend {
	case "portaudio", "pipewire":
	default:
		return invalid("recording.backend: %s (must be portaudio or pipewire)", r.Backend)
	}
	if r.SampleRate <= 0 {
		return invalid("recording.sample_rate: %d", r.SampleRate)
	}
	if r.Channels <= 0 {
		return invalid("recording.channels: %d", r.Channels)
	}
	if r.BufferDuration <= 0 {
		return invalid("recording.buffer_duration: %v", r.BufferDuration)
	}
	if r.BufferSeconds <= 0 {
		return invalid("recording.buffer_seconds: %v", r.BufferSeconds)
	}
	if r.Timeout <= 0 {
		return invalid("recording.timeout: %v", r.Timeout)
	}
	return nil
}

func (c *Config) validateVAD() error {
	v := c.VAD
	if v.ThresholdDB > 0 {
		return invalid("vad.threshold_db: %v (must be <= 0)", v.ThresholdDB)
	}
	if v.SmoothingFactor < 0 || v.SmoothingFactor > 1 {
		return invalid("vad.smoothing_factor: %v (must be between 0 and 1)", v.SmoothingFactor)
	}
	if v.SilenceTimeoutFrames <= 0 {
		return invalid("vad.silence_timeout_frames: %d", v.SilenceTimeoutFrames)
	}
	if v.MinSpeechFrames <= 0 {
		return invalid("vad.min_speech_frames: %d", v.MinSpeechFrames)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	t := c.Transcription
	if t.Model == "" {
		return invalid("transcription.model: empty")
	}
	if t.Language != "" && !languageCode.MatchString(t.Language) {
		return invalid("transcription.language: %s (use codes like 'en', 'pt', 'es')", t.Language)
	}
	switch t.CommitStrategy {
	case "vad", "manual":
	default:
		return invalid("transcription.commit_strategy: %s (must be vad or manual)", t.CommitStrategy)
	}
	if c.APIKey() == "" {
		return invalid("API key required: not found in config (transcription.api_key) or environment variable (%s)", APIKeyEnv)
	}
	return nil
}

func (c *Config) validateConnection() error {
	conn := c.Connection
	u, err := url.Parse(conn.URL)
	if err != nil {
		return invalid("connection.url: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return invalid("connection.url: scheme %q (must be ws or wss)", u.Scheme)
	}
	if conn.ConnectTimeout <= 0 {
		return invalid("connection.connect_timeout: %v", conn.ConnectTimeout)
	}
	if conn.ReceiveTimeout <= 0 {
		return invalid("connection.receive_timeout: %v", conn.ReceiveTimeout)
	}
	if conn.ReconnectDelay <= 0 {
		return invalid("connection.reconnect_delay: %v", conn.ReconnectDelay)
	}
	if conn.MaxReconnectAttempts < 0 {
		return invalid("connection.max_reconnect_attempts: %d", conn.MaxReconnectAttempts)
	}
	if conn.KeepAliveInterval <= 0 {
		return invalid("connection.keep_alive_interval: %v", conn.KeepAliveInterval)
	}
	if conn.FinalizeTimeout <= 0 {
		return invalid("connection.finalize_timeout: %v", conn.FinalizeTimeout)
	}
	return nil
}

func (c *Config) validateInjection() error {
	if !c.Injection.Enabled {
		return nil
	}
	if len(c.Injection.Backends) == 0 {
		return invalid("injection.backends: empty (use ydotool, wtype, clipboard)")
	}
	for _, name := range c.Injection.Backends {
		if _, err := injection.NewBackend(name); err != nil {
			return invalid("injection.backends: %v", err)
		}
	}
	return nil
}
