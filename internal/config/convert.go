package config

import (
	"os"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/injection"
	"github.com/leonardotrapani/audioflow/internal/transcriber"
	"github.com/leonardotrapani/audioflow/internal/vad"
	"github.com/leonardotrapani/audioflow/internal/wsclient"
)

// StreamSampleRate is the rate audio is resampled to before streaming.
const StreamSampleRate = 16000

// APIKey returns transcription.api_key, falling back to the environment.
func (c *Config) APIKey() string {
	if c.Transcription.APIKey != "" {
		return c.Transcription.APIKey
	}
	return os.Getenv(APIKeyEnv)
}

func (c *Config) ToCaptureConfig() audio.Config {
	return audio.Config{
		DeviceID:       c.Recording.Device,
		SampleRate:     c.Recording.SampleRate,
		Channels:       c.Recording.Channels,
		BufferDuration: c.Recording.BufferDuration,
		BufferSeconds:  c.Recording.BufferSeconds,
	}
}

func (c *Config) ToVADConfig() vad.Config {
	return vad.Config{
		ThresholdDB:          c.VAD.ThresholdDB,
		SmoothingFactor:      c.VAD.SmoothingFactor,
		SilenceTimeoutFrames: c.VAD.SilenceTimeoutFrames,
		MinSpeechFrames:      c.VAD.MinSpeechFrames,
	}
}

func (c *Config) ToSessionConfig() transcriber.Config {
	config := transcriber.DefaultConfig()
	config.ModelID = c.Transcription.Model
	config.LanguageCode = c.Transcription.Language
	config.CommitStrategy = c.Transcription.CommitStrategy
	return config
}

// ToClientConfig carries the session parameters as query parameters so the
// service can apply them before the configure message arrives.
func (c *Config) ToClientConfig() wsclient.Config {
	config := wsclient.DefaultConfig()
	config.URL = c.Connection.URL
	config.APIKey = c.APIKey()
	config.Query = c.ToSessionConfig().Query()
	config.ConnectTimeout = c.Connection.ConnectTimeout
	config.ReceiveTimeout = c.Connection.ReceiveTimeout
	config.ReconnectDelay = c.Connection.ReconnectDelay
	config.MaxReconnectAttempts = c.Connection.MaxReconnectAttempts
	config.KeepAliveInterval = c.Connection.KeepAliveInterval
	config.SampleRate = StreamSampleRate
	return config
}

func (c *Config) ToInjectionConfig() injection.Config {
	return injection.Config{
		Backends:         append([]string(nil), c.Injection.Backends...),
		YdotoolTimeout:   c.Injection.YdotoolTimeout,
		WtypeTimeout:     c.Injection.WtypeTimeout,
		ClipboardTimeout: c.Injection.ClipboardTimeout,
	}
}
