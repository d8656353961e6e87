// Package events turns session, connection and capture activity into
// user-facing notifications and delivers them to subscribers in order.
package events

import (
	"fmt"
	"time"

	"github.com/leonardotrapani/audioflow/internal/apperror"
	"github.com/leonardotrapani/audioflow/internal/transcriber"
	"github.com/leonardotrapani/audioflow/internal/wsclient"
)

type Kind int

const (
	StateChanged Kind = iota
	ConnectionChanged
	Transcript
	AudioLevel
	Error
)

func (k Kind) String() string {
	switch k {
	case StateChanged:
		return "state_changed"
	case ConnectionChanged:
		return "connection_changed"
	case Transcript:
		return "transcript"
	case AudioLevel:
		return "audio_level"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind Kind

	State string // StateChanged, ConnectionChanged

	Text       string // Transcript
	Final      bool
	Confidence float64

	LevelDB  float64 // AudioLevel
	IsSpeech bool

	Code        string // Error
	Message     string
	Recoverable bool

	Time time.Time
}

func (e Event) String() string {
	switch e.Kind {
	case StateChanged, ConnectionChanged:
		return fmt.Sprintf("%s: %s", e.Kind, e.State)
	case Transcript:
		if e.Final {
			return fmt.Sprintf("final: %s", e.Text)
		}
		return fmt.Sprintf("partial: %s", e.Text)
	case AudioLevel:
		return fmt.Sprintf("level: %.1f dB speech=%t", e.LevelDB, e.IsSpeech)
	case Error:
		return fmt.Sprintf("error %s: %s", e.Code, e.Message)
	default:
		return e.Kind.String()
	}
}

// FromSession maps a session event. Session start and end map to state
// changes; the second result is false for events with nothing to report.
func FromSession(ev transcriber.Event) (Event, bool) {
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Kind {
	case transcriber.SessionStarted:
		return Event{Kind: StateChanged, State: "session " + ev.SessionID, Time: at}, true
	case transcriber.PartialTranscript:
		return Event{Kind: Transcript, Text: ev.Text, Time: at}, true
	case transcriber.CommittedTranscript, transcriber.WordDetails:
		return Event{Kind: Transcript, Text: ev.Text, Final: true, Confidence: ev.Confidence, Time: at}, true
	case transcriber.Error:
		return Event{
			Kind:        Error,
			Code:        ev.Code,
			Message:     ev.Message,
			Recoverable: apperror.Code(ev.Code).Recoverable(),
			Time:        at,
		}, true
	case transcriber.Disconnected:
		return Event{Kind: ConnectionChanged, State: wsclient.Disconnected.String(), Time: at}, true
	default:
		return Event{}, false
	}
}

func FromConnection(s wsclient.State) Event {
	return Event{Kind: ConnectionChanged, State: s.String(), Time: time.Now()}
}

func FromError(err error) Event {
	code := apperror.CodeOf(err)
	return Event{
		Kind:        Error,
		Code:        string(code),
		Message:     err.Error(),
		Recoverable: code.Recoverable(),
		Time:        time.Now(),
	}
}

func State(state string) Event {
	return Event{Kind: StateChanged, State: state, Time: time.Now()}
}

func Level(db float64, speech bool) Event {
	return Event{Kind: AudioLevel, LevelDB: db, IsSpeech: speech, Time: time.Now()}
}
