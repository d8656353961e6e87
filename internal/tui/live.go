package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/muesli/termenv"

	"github.com/leonardotrapani/audioflow/internal/events"
)

const meterWidth = 12

// LivePrinter renders session events to a terminal. The current partial
// transcript is redrawn in place; committed text, state changes and
// errors are printed on their own lines above it.
type LivePrinter struct {
	mu        sync.Mutex
	out       *termenv.Output
	showLevel bool

	partial string
	levelDB float64
	speech  bool
	finals  []string
}

func NewLivePrinter(w io.Writer, showLevel bool) *LivePrinter {
	return &LivePrinter{
		out:       termenv.NewOutput(w),
		showLevel: showLevel,
		levelDB:   -100,
	}
}

// Handle is an events.Handler.
func (p *LivePrinter) Handle(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case events.Transcript:
		if !ev.Final {
			p.partial = ev.Text
			p.redraw()
			return
		}
		p.partial = ""
		if ev.Text == "" {
			p.redraw()
			return
		}
		p.finals = append(p.finals, ev.Text)
		p.println(ev.Text)

	case events.AudioLevel:
		if !p.showLevel {
			return
		}
		p.levelDB = ev.LevelDB
		p.speech = ev.IsSpeech
		p.redraw()

	case events.StateChanged:
		if strings.HasPrefix(ev.State, "session ") {
			return
		}
		p.println(StyleMuted.Render("· " + ev.State))

	case events.ConnectionChanged:
		p.println(StyleMuted.Render("· connection " + ev.State))

	case events.Error:
		msg := fmt.Sprintf("%s: %s", ev.Code, ev.Message)
		if ev.Recoverable {
			p.println(StyleWarning.Render(msg))
		} else {
			p.println(StyleError.Render(msg))
		}
	}
}

// Transcript returns the committed text printed so far.
func (p *LivePrinter) Transcript() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.finals, " ")
}

// println writes line above the live line and redraws it.
func (p *LivePrinter) println(line string) {
	p.out.ClearLine()
	fmt.Fprint(p.out, "\r"+line+"\n")
	p.redraw()
}

func (p *LivePrinter) redraw() {
	p.out.ClearLine()
	var b strings.Builder
	b.WriteString("\r")
	if p.showLevel {
		b.WriteString(levelMeter(p.levelDB, p.speech))
		b.WriteString(" ")
	}
	if p.partial != "" {
		b.WriteString(StylePartial.Render(p.partial))
	}
	fmt.Fprint(p.out, b.String())
}

// levelMeter maps -60..0 dBFS onto a fixed-width bar.
func levelMeter(db float64, speech bool) string {
	filled := int((db + 60) / 60 * meterWidth)
	filled = max(0, min(meterWidth, filled))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", meterWidth-filled)
	if speech {
		return StyleSpeech.Render(bar)
	}
	return StyleMuted.Render(bar)
}
