package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/audio/backend"
	"github.com/leonardotrapani/audioflow/internal/bus"
	"github.com/leonardotrapani/audioflow/internal/config"
	"github.com/leonardotrapani/audioflow/internal/daemon"
	"github.com/leonardotrapani/audioflow/internal/deps"
	"github.com/leonardotrapani/audioflow/internal/events"
	"github.com/leonardotrapani/audioflow/internal/pipeline"
	"github.com/leonardotrapani/audioflow/internal/tui"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "audioflow",
	Short:        "Realtime speech-to-text from your microphone",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		controlCmd("toggle", "Start recording, or finish and inject the transcript", bus.CmdToggle),
		controlCmd("cancel", "Abort the current recording", bus.CmdCancel),
		controlCmd("commit", "Finalize the current utterance and keep recording", bus.CmdCommit),
		controlCmd("status", "Get current recording status", bus.CmdStatus),
		controlCmd("version", "Get protocol and daemon version", bus.CmdVersion),
		controlCmd("stop", "Stop the daemon", bus.CmdQuit),
		devicesCmd(),
		doctorCmd(),
		listenCmd(),
		configureCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return daemon.New(mgr).Run()
		},
	}
}

// controlCmd sends one command byte to the running daemon and prints its reply.
func controlCmd(use, short string, c byte) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(c)
			if err != nil {
				return fmt.Errorf("failed to %s: %w", use, err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func devicesCmd() *cobra.Command {
	var backendName string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if backendName == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				backendName = cfg.Recording.Backend
			}

			devices, err := listDevices(cmd.Context(), backendName)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No input devices found.")
				return nil
			}
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				fmt.Printf("%s %-6s %s (%d ch, %v Hz)\n", marker, d.ID, d.Name, d.Channels, d.SampleRates)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backendName, "backend", "", "Capture backend (portaudio or pipewire), defaults to the configured one")

	return cmd
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the external tools audioflow relies on",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, tool := range deps.Tools {
				status := deps.Check(cmd.Context(), tool)
				if !status.Installed {
					fmt.Printf("%s %-12s missing (%s)\n", tui.StyleError.Render("✗"), tool.Name, tool.UsedBy)
					continue
				}
				detail := status.Path
				if status.Version != "" {
					detail = status.Version
				}
				fmt.Printf("%s %-12s %s\n", tui.StyleSuccess.Render("✓"), tool.Name, tui.StyleMuted.Render(detail))
			}

			if key := os.Getenv(config.APIKeyEnv); key == "" {
				fmt.Printf("%s $%s is not set; the key must be in config.toml\n", tui.StyleWarning.Render("!"), config.APIKeyEnv)
			}
			return nil
		},
	}
}

func listDevices(ctx context.Context, name string) ([]audio.DeviceInfo, error) {
	b, release, err := backend.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer release()

	devices, err := b.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func listenCmd() *cobra.Command {
	var inject, levels, verbose bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream the microphone in the foreground and print transcripts",
		Long: `Runs one session in the foreground without the daemon.
Partial transcripts are shown as you speak. Press Ctrl-C once to finish
and wait for the last transcript, twice to abort.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				log.SetOutput(io.Discard)
			}
			return runListen(cmd.Context(), inject, levels)
		},
	}

	cmd.Flags().BoolVar(&inject, "inject", false, "Type the final transcript into the focused window")
	cmd.Flags().BoolVar(&levels, "levels", true, "Show the input level meter")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Keep component logs on stderr")

	return cmd
}

func runListen(ctx context.Context, inject, levels bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Injection.Enabled = inject
	if err := cfg.Validate(); err != nil {
		return err
	}

	b, release, err := backend.Open(ctx, cfg.Recording.Backend)
	if err != nil {
		return err
	}
	defer release()

	dispatcher := events.NewDispatcher(256)
	printer := tui.NewLivePrinter(os.Stdout, levels)
	dispatcher.Subscribe(printer.Handle)

	p := pipeline.New(cfg, pipeline.WithBackend(b), pipeline.WithDispatcher(dispatcher))

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	p.Run(ctx)

	finishing := false
	for done := false; !done; {
		select {
		case <-sigCh:
			action := pipeline.Finish
			if finishing {
				action = pipeline.Cancel
			}
			finishing = true
			select {
			case p.GetActionCh() <- action:
			default:
			}
		case <-p.Done():
			done = true
		}
	}

	dispatcher.Close()
	fmt.Println()

	res := p.Result()
	if res.Err != nil {
		return res.Err
	}
	if res.Text != "" {
		fmt.Println(tui.StyleSuccess.Render(res.Text))
	}
	return nil
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration for audioflow.
This will guide you through setting up:
- The realtime transcription model, language and API key
- Capture backend, device and voice detection
- Text injection, notifications and metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd.Context())
		},
	}
}

func runConfigure(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	devices, err := listDevices(ctx, cfg.Recording.Backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	result, err := tui.Run(cfg, devices)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Println()

	showNextSteps(result.Config)

	return nil
}

func showNextSteps(cfg *config.Config) {
	serviceRunning := false
	if err := exec.Command("systemctl", "--user", "is-active", "--quiet", "audioflow.service").Run(); err == nil {
		serviceRunning = true
	}

	fmt.Println("Next Steps:")
	step := 1
	if cfg.Injection.Enabled && slices.Contains(cfg.Injection.Backends, "ydotool") {
		fmt.Printf("%d. Ensure ydotoold is running\n", step)
		step++
	}
	if !serviceRunning {
		fmt.Printf("%d. Start the service: systemctl --user start audioflow.service\n", step)
	} else {
		fmt.Printf("%d. Config changes are picked up automatically; restart only to change metrics\n", step)
	}
	step++
	fmt.Printf("%d. Check external tools: audioflow doctor\n", step)
	step++
	fmt.Printf("%d. Try it in the foreground: audioflow listen\n", step)
	step++
	fmt.Printf("%d. Bind a key to: audioflow toggle\n", step)
	fmt.Println()

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
}
