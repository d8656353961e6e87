package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/config"
)

func editTranscription(cfg *config.Config) error {
	model := cfg.Transcription.Model
	lang := cfg.Transcription.Language
	key := cfg.Transcription.APIKey
	strategy := cfg.Transcription.CommitStrategy

	keyDesc := "Stored in config.toml"
	if key == "" {
		keyDesc = fmt.Sprintf("Leave empty to read $%s", config.APIKeyEnv)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Model").
				Description("Realtime speech-to-text model ID").
				Value(&model).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("model is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Language").
				Description("Language code such as en, de or pt-BR").
				Value(&lang),
			huh.NewInput().
				Title("API Key").
				Description(keyDesc).
				EchoMode(huh.EchoModePassword).
				Value(&key),
			huh.NewSelect[string]().
				Title("Commit Strategy").
				Description("When the server finalizes an utterance").
				Options(
					huh.NewOption("Server-side voice detection", "vad"),
					huh.NewOption("Manual (commit command or silence)", "manual"),
				).
				Value(&strategy),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Transcription.Model = strings.TrimSpace(model)
	cfg.Transcription.Language = strings.TrimSpace(lang)
	cfg.Transcription.APIKey = strings.TrimSpace(key)
	cfg.Transcription.CommitStrategy = strategy
	return nil
}

func editRecording(cfg *config.Config, devices []audio.DeviceInfo) error {
	backend := cfg.Recording.Backend
	device := cfg.Recording.Device
	rate := strconv.Itoa(cfg.Recording.SampleRate)
	timeout := cfg.Recording.Timeout.String()
	dump := cfg.Recording.DumpPath

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Capture Backend").
				Options(
					huh.NewOption("PortAudio", "portaudio"),
					huh.NewOption("PipeWire (pw-record)", "pipewire"),
				).
				Value(&backend),
			huh.NewSelect[string]().
				Title("Input Device").
				Options(deviceOptions(devices)...).
				Value(&device),
			huh.NewInput().
				Title("Sample Rate").
				Description("Capture rate in Hz; audio is resampled to 16000 for streaming").
				Value(&rate).
				Validate(validateInt(8000, 192000)),
			huh.NewInput().
				Title("Maximum Recording Length").
				Value(&timeout).
				Validate(validateDuration),
			huh.NewInput().
				Title("WAV Dump Path").
				Description("Optional copy of each recording, empty to disable").
				Value(&dump),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Recording.Backend = backend
	cfg.Recording.Device = device
	cfg.Recording.SampleRate = atoi(rate)
	cfg.Recording.Timeout = parseDuration(timeout)
	cfg.Recording.DumpPath = strings.TrimSpace(dump)
	return nil
}

func editVAD(cfg *config.Config) error {
	threshold := strconv.FormatFloat(cfg.VAD.ThresholdDB, 'f', -1, 64)
	smoothing := strconv.FormatFloat(cfg.VAD.SmoothingFactor, 'f', -1, 64)
	silence := strconv.Itoa(cfg.VAD.SilenceTimeoutFrames)
	commit := cfg.VAD.CommitOnSilence

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Speech Threshold (dBFS)").
				Description("Frames louder than this count as speech").
				Value(&threshold).
				Validate(validateFloat(-120, 0)),
			huh.NewInput().
				Title("Smoothing Factor").
				Description("0 follows the raw level, 1 never moves").
				Value(&smoothing).
				Validate(validateFloat(0, 1)),
			huh.NewInput().
				Title("Silence Frames").
				Description("Quiet frames before a speech segment ends").
				Value(&silence).
				Validate(validateInt(1, 1000)),
			huh.NewConfirm().
				Title("Commit on silence?").
				Description("Finalize the utterance whenever a speech segment ends").
				Value(&commit),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.VAD.ThresholdDB = atof(threshold)
	cfg.VAD.SmoothingFactor = atof(smoothing)
	cfg.VAD.SilenceTimeoutFrames = atoi(silence)
	cfg.VAD.CommitOnSilence = commit
	return nil
}

func editConnection(cfg *config.Config) error {
	url := cfg.Connection.URL
	connect := cfg.Connection.ConnectTimeout.String()
	attempts := strconv.Itoa(cfg.Connection.MaxReconnectAttempts)
	delay := cfg.Connection.ReconnectDelay.String()
	finalize := cfg.Connection.FinalizeTimeout.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Endpoint").
				Value(&url).
				Validate(validateWebSocketURL),
			huh.NewInput().
				Title("Connect Timeout").
				Value(&connect).
				Validate(validateDuration),
			huh.NewInput().
				Title("Reconnect Attempts").
				Description("0 disables reconnection").
				Value(&attempts).
				Validate(validateInt(0, 100)),
			huh.NewInput().
				Title("Reconnect Delay").
				Description("Doubled after each failed attempt").
				Value(&delay).
				Validate(validateDuration),
			huh.NewInput().
				Title("Finalize Timeout").
				Description("How long to wait for the last transcript on stop").
				Value(&finalize).
				Validate(validateDuration),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Connection.URL = strings.TrimSpace(url)
	cfg.Connection.ConnectTimeout = parseDuration(connect)
	cfg.Connection.MaxReconnectAttempts = atoi(attempts)
	cfg.Connection.ReconnectDelay = parseDuration(delay)
	cfg.Connection.FinalizeTimeout = parseDuration(finalize)
	return nil
}

func editInjection(cfg *config.Config) error {
	enabled := cfg.Injection.Enabled

	enableForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Type the transcript into the focused window?").
				Description("Disabled sessions only report the transcript").
				Value(&enabled),
		),
	).WithTheme(getTheme())

	if err := enableForm.Run(); err != nil {
		return err
	}

	cfg.Injection.Enabled = enabled
	if !enabled {
		return nil
	}

	backends := append([]string(nil), cfg.Injection.Backends...)
	options := []huh.Option[string]{
		huh.NewOption("ydotool (uinput, needs ydotoold)", "ydotool"),
		huh.NewOption("wtype (Wayland virtual keyboard)", "wtype"),
		huh.NewOption("clipboard (wl-copy)", "clipboard"),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Injection Backends").
				Description("Tried in order until one succeeds").
				Options(options...).
				Value(&backends).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return fmt.Errorf("select at least one backend")
					}
					return nil
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Injection.Backends = orderBackends(backends)
	return nil
}

// orderBackends keeps the fallback order stable regardless of the order
// options were toggled in.
func orderBackends(selected []string) []string {
	var ordered []string
	for _, name := range []string{"ydotool", "wtype", "clipboard"} {
		for _, s := range selected {
			if s == name {
				ordered = append(ordered, name)
				break
			}
		}
	}
	return ordered
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled

	desc := "Show notifications for recording status and transcripts"
	if cfg.Notifications.Enabled {
		desc = fmt.Sprintf("Currently: enabled (%s). %s", cfg.Notifications.Type, desc)
	} else {
		desc = "Currently: disabled. " + desc
	}

	enableForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Description(desc).
				Value(&enabled),
		),
	).WithTheme(getTheme())

	if err := enableForm.Run(); err != nil {
		return err
	}

	cfg.Notifications.Enabled = enabled
	if !enabled {
		return nil
	}

	notifType := cfg.Notifications.Type
	if notifType == "" {
		notifType = "desktop"
	}

	typeForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notification Type").
				Description("How should notifications be displayed?").
				Options(
					huh.NewOption("Desktop notifications (notify-send)", "desktop"),
					huh.NewOption("Log to console only", "log"),
					huh.NewOption("None (silent)", "none"),
				).
				Value(&notifType),
		),
	).WithTheme(getTheme())

	if err := typeForm.Run(); err != nil {
		return err
	}

	cfg.Notifications.Type = notifType
	return nil
}

func editMetrics(cfg *config.Config) error {
	enabled := cfg.Metrics.Enabled
	addr := cfg.Metrics.Address

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Expose Prometheus metrics?").
				Description("Takes effect the next time the daemon starts").
				Value(&enabled),
			huh.NewInput().
				Title("Listen Address").
				Value(&addr),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Metrics.Enabled = enabled
	cfg.Metrics.Address = strings.TrimSpace(addr)
	return nil
}
