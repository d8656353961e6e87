package notify

import (
	"fmt"
	"log"
	"os/exec"

	"github.com/leonardotrapani/audioflow/internal/events"
)

const appName = "audioflow"

type Notifier interface {
	RecordingChanged(on bool)
	Transcript(text string)
	Error(msg string)
}

// Handler adapts n to the event dispatcher. Partial transcripts, audio
// levels and recoverable errors are not user notifications.
func Handler(n Notifier) events.Handler {
	return func(ev events.Event) {
		switch ev.Kind {
		case events.StateChanged:
			switch ev.State {
			case "recording":
				n.RecordingChanged(true)
			case "idle":
				n.RecordingChanged(false)
			}
		case events.Transcript:
			if ev.Final && ev.Text != "" {
				n.Transcript(ev.Text)
			}
		case events.Error:
			if !ev.Recoverable {
				n.Error(ev.Message)
			}
		}
	}
}

// New picks a notifier by config name.
func New(kind string) Notifier {
	switch kind {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}

type Desktop struct{}

func (Desktop) RecordingChanged(on bool) {
	state := "Stopped"
	if on {
		state = "Started"
	}
	send("-a", appName, fmt.Sprintf("audioflow: %s Recording", state))
}

func (Desktop) Transcript(text string) {
	send("-a", appName, "-t", "3000", "audioflow", text)
}

func (Desktop) Error(msg string) {
	send("-a", appName, "-u", "critical", "audioflow Error", msg)
}

func send(args ...string) {
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

type Log struct{}

func (Log) RecordingChanged(on bool) {
	if on {
		log.Printf("audioflow: Recording Started")
		return
	}
	log.Printf("audioflow: Recording Stopped")
}

func (Log) Transcript(text string) { log.Printf("audioflow: Transcript: %s", text) }
func (Log) Error(msg string)       { log.Printf("audioflow Error: %s", msg) }

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) RecordingChanged(on bool) {}
func (Nop) Transcript(text string)   {}
func (Nop) Error(msg string)         {}
