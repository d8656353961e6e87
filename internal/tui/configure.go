package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/config"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionTranscription ConfigSection = "transcription"
	SectionRecording     ConfigSection = "recording"
	SectionVAD           ConfigSection = "vad"
	SectionConnection    ConfigSection = "connection"
	SectionInjection     ConfigSection = "injection"
	SectionNotifications ConfigSection = "notifications"
	SectionMetrics       ConfigSection = "metrics"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run edits a copy of cfg through a section menu. devices feeds the
// device picker; an empty list only offers the system default.
func Run(cfg *config.Config, devices []audio.DeviceInfo) (*ConfigureResult, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	working := *cfg
	working.Injection.Backends = append([]string(nil), cfg.Injection.Backends...)

	// first run: ask for the essentials before showing the menu
	if working.APIKey() == "" {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()
		if err := editTranscription(&working); err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}
	}

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(&working)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := working.Validate(); err != nil {
				fmt.Println(StyleError.Render(err.Error()))
				waitForEnter()
				continue
			}
			confirmed, err := showSummary(&working)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: &working}, nil
			}

		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case SectionTranscription:
			if err := editTranscription(&working); err != nil {
				continue
			}

		case SectionRecording:
			if err := editRecording(&working, devices); err != nil {
				continue
			}

		case SectionVAD:
			if err := editVAD(&working); err != nil {
				continue
			}

		case SectionConnection:
			if err := editConnection(&working); err != nil {
				continue
			}

		case SectionInjection:
			if err := editInjection(&working); err != nil {
				continue
			}

		case SectionNotifications:
			if err := editNotifications(&working); err != nil {
				continue
			}

		case SectionMetrics:
			if err := editMetrics(&working); err != nil {
				continue
			}
		}
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption(formatTranscriptionLabel(cfg), SectionTranscription),
		huh.NewOption(formatRecordingLabel(cfg), SectionRecording),
		huh.NewOption(formatVADLabel(cfg), SectionVAD),
		huh.NewOption(formatConnectionLabel(cfg), SectionConnection),
		huh.NewOption(formatInjectionLabel(cfg), SectionInjection),
		huh.NewOption(formatNotificationsLabel(cfg), SectionNotifications),
		huh.NewOption(formatMetricsLabel(cfg), SectionMetrics),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}

	return selected, nil
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	fmt.Println()

	row := func(label, value string) {
		fmt.Printf("  %s %s\n", StyleLabel.Render(label), value)
	}

	row("Model:", cfg.Transcription.Model)
	row("Language:", cfg.Transcription.Language)
	row("API key:", maskKey(cfg.Transcription.APIKey))
	row("Commit:", cfg.Transcription.CommitStrategy)
	row("Capture:", fmt.Sprintf("%s, %d Hz, %d ch", cfg.Recording.Backend, cfg.Recording.SampleRate, cfg.Recording.Channels))
	row("VAD:", fmt.Sprintf("%.0f dB, commit on silence %t", cfg.VAD.ThresholdDB, cfg.VAD.CommitOnSilence))
	row("Endpoint:", cfg.Connection.URL)
	fmt.Printf("  %s\n", StyleMuted.Render(formatInjectionLabel(cfg)))
	fmt.Printf("  %s\n", StyleMuted.Render(formatNotificationsLabel(cfg)))
	fmt.Printf("  %s\n", StyleMuted.Render(formatMetricsLabel(cfg)))
	fmt.Println()

	if cfg.Transcription.APIKey == "" && cfg.APIKey() != "" {
		fmt.Println(StyleWarning.Render(fmt.Sprintf("  API key read from $%s", config.APIKeyEnv)))
		fmt.Println()
	}

	confirmed := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Back").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

func waitForEnter() {
	fmt.Println(StyleMuted.Render("Press enter to continue"))
	var discard string
	fmt.Scanln(&discard)
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)
	t.Focused.ErrorMessage = lipgloss.NewStyle().Foreground(ColorError)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}
