package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/config"
)

func formatTranscriptionLabel(cfg *config.Config) string {
	lang := cfg.Transcription.Language
	if lang == "" {
		lang = "auto"
	}
	return fmt.Sprintf("Transcription (%s, %s)", cfg.Transcription.Model, lang)
}

func formatRecordingLabel(cfg *config.Config) string {
	device := cfg.Recording.Device
	if device == "" {
		device = "default device"
	}
	return fmt.Sprintf("Recording (%s, %s)", cfg.Recording.Backend, device)
}

func formatVADLabel(cfg *config.Config) string {
	label := fmt.Sprintf("Voice Detection (%.0f dB", cfg.VAD.ThresholdDB)
	if cfg.VAD.CommitOnSilence {
		label += ", commit on silence"
	}
	return label + ")"
}

func formatConnectionLabel(cfg *config.Config) string {
	return fmt.Sprintf("Connection (%d retries)", cfg.Connection.MaxReconnectAttempts)
}

func formatInjectionLabel(cfg *config.Config) string {
	if !cfg.Injection.Enabled {
		return "Injection (disabled)"
	}
	return fmt.Sprintf("Injection (%s)", strings.Join(cfg.Injection.Backends, " -> "))
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications (disabled)"
	}
	return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
}

func formatMetricsLabel(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return "Metrics (disabled)"
	}
	return fmt.Sprintf("Metrics (%s)", cfg.Metrics.Address)
}

// maskKey shows the last four characters of an API key.
func maskKey(key string) string {
	if key == "" {
		return "not set"
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}

// deviceOptions lists capture devices with the system default first.
func deviceOptions(devices []audio.DeviceInfo) []huh.Option[string] {
	options := []huh.Option[string]{huh.NewOption("System default", "")}
	for _, d := range devices {
		label := fmt.Sprintf("%s (%s)", d.Name, d.ID)
		if d.Default {
			label += " [default]"
		}
		options = append(options, huh.NewOption(label, d.ID))
	}
	return options
}

func validateInt(min, max int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("enter a whole number")
		}
		if v < min || v > max {
			return fmt.Errorf("must be between %d and %d", min, max)
		}
		return nil
	}
}

func validateFloat(min, max float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("enter a number")
		}
		if v < min || v > max {
			return fmt.Errorf("must be between %g and %g", min, max)
		}
		return nil
	}
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("use a duration like 500ms or 5s")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateWebSocketURL(s string) error {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "wss://") && !strings.HasPrefix(s, "ws://") {
		return fmt.Errorf("must start with wss:// or ws://")
	}
	return nil
}

// inputs are validated by the form before these run

func atoi(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(s))
	return d
}
