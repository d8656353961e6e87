package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/resample"
	"github.com/leonardotrapani/audioflow/internal/wsclient"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"no device", audio.ErrNoDevice, AudioNoDevice},
		{"wrapped stream", fmt.Errorf("open: %w", audio.ErrStreamCreationFailed), AudioStreamFailed},
		{"capture", audio.ErrCaptureFailed, AudioCaptureFailed},
		{"config", audio.ErrConfigurationFailed, AudioConfigFailed},
		{"resample", resample.ErrResamplingFailed, AudioResampleFailed},
		{"auth", fmt.Errorf("%w: 401", wsclient.ErrAuthenticationFailed), NetworkAuthFailed},
		{"connect", wsclient.ErrConnectionFailed, NetworkConnectFailed},
		{"lost", fmt.Errorf("%w: eof", wsclient.ErrConnectionLost), NetworkLost},
		{"send", wsclient.ErrSendFailed, NetworkSendFailed},
		{"receive", wsclient.ErrReceiveTimeout, NetworkReceiveFailed},
		{"invalid config", fmt.Errorf("%w: bad rate", ErrInvalidConfig), ConfigInvalid},
		{"other", errors.New("boom"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	recoverable := []error{
		wsclient.ErrConnectionLost,
		fmt.Errorf("reconnect: %w", wsclient.ErrConnectionFailed),
	}
	for _, err := range recoverable {
		if !IsRecoverable(err) {
			t.Errorf("IsRecoverable(%v) = false, want true", err)
		}
	}

	fatal := []error{
		nil,
		wsclient.ErrAuthenticationFailed,
		wsclient.ErrSendFailed,
		audio.ErrNoDevice,
		ErrInvalidConfig,
		errors.New("boom"),
	}
	for _, err := range fatal {
		if IsRecoverable(err) {
			t.Errorf("IsRecoverable(%v) = true, want false", err)
		}
	}
}

func TestCode_Message(t *testing.T) {
	for _, c := range codes {
		if c.code.Message() == Unknown.Message() {
			t.Errorf("%s has no specific message", c.code)
		}
	}
}
