// Package apperror maps package sentinels onto stable error codes that the
// event layer and CLI report.
package apperror

import (
	"errors"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/resample"
	"github.com/leonardotrapani/audioflow/internal/wsclient"
)

type Code string

// ErrInvalidConfig is wrapped by configuration validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	AudioNoDevice        Code = "AUDIO_NO_DEVICE"
	AudioConfigFailed    Code = "AUDIO_CONFIG_FAILED"
	AudioStreamFailed    Code = "AUDIO_STREAM_FAILED"
	AudioCaptureFailed   Code = "AUDIO_CAPTURE_FAILED"
	AudioResampleFailed  Code = "AUDIO_RESAMPLE_FAILED"
	NetworkConnectFailed Code = "NETWORK_CONNECT_FAILED"
	NetworkAuthFailed    Code = "NETWORK_AUTH_FAILED"
	NetworkLost          Code = "NETWORK_LOST"
	NetworkSendFailed    Code = "NETWORK_SEND_FAILED"
	NetworkReceiveFailed Code = "NETWORK_RECEIVE_FAILED"
	ConfigInvalid        Code = "CONFIG_INVALID"
	Unknown              Code = "UNKNOWN"
)

var codes = []struct {
	target error
	code   Code
}{
	{audio.ErrNoDevice, AudioNoDevice},
	{audio.ErrConfigurationFailed, AudioConfigFailed},
	{audio.ErrStreamCreationFailed, AudioStreamFailed},
	{audio.ErrCaptureFailed, AudioCaptureFailed},
	{resample.ErrResamplingFailed, AudioResampleFailed},
	// auth is checked before connect: an auth error is never retried
	{wsclient.ErrAuthenticationFailed, NetworkAuthFailed},
	{wsclient.ErrConnectionFailed, NetworkConnectFailed},
	{wsclient.ErrConnectionLost, NetworkLost},
	{wsclient.ErrSendFailed, NetworkSendFailed},
	{wsclient.ErrReceiveTimeout, NetworkReceiveFailed},
	{ErrInvalidConfig, ConfigInvalid},
}

// CodeOf returns the code of the first known sentinel in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return Unknown
}

// IsRecoverable reports whether retrying the connection may clear err.
func IsRecoverable(err error) bool {
	return CodeOf(err).Recoverable()
}

func (c Code) Recoverable() bool {
	return c == NetworkLost || c == NetworkConnectFailed
}

// Message is a short human readable description for notifications.
func (c Code) Message() string {
	switch c {
	case AudioNoDevice:
		return "No audio input device found"
	case AudioConfigFailed:
		return "Audio device configuration failed"
	case AudioStreamFailed:
		return "Could not open audio stream"
	case AudioCaptureFailed:
		return "Audio capture failed"
	case AudioResampleFailed:
		return "Audio resampling failed"
	case NetworkConnectFailed:
		return "Could not connect to transcription service"
	case NetworkAuthFailed:
		return "Transcription service rejected the API key"
	case NetworkLost:
		return "Connection to transcription service lost"
	case NetworkSendFailed:
		return "Sending audio failed"
	case NetworkReceiveFailed:
		return "Receiving transcription failed"
	case ConfigInvalid:
		return "Invalid configuration"
	default:
		return "Unexpected error"
	}
}
