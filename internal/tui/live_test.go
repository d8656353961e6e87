package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leonardotrapani/audioflow/internal/events"
)

func TestLivePrinter(t *testing.T) {
	t.Run("partial then final", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewLivePrinter(&buf, false)

		p.Handle(events.Event{Kind: events.Transcript, Text: "hel"})
		p.Handle(events.Event{Kind: events.Transcript, Text: "hello wor"})
		p.Handle(events.Event{Kind: events.Transcript, Text: "hello world", Final: true})
		p.Handle(events.Event{Kind: events.Transcript, Text: "again", Final: true})

		out := buf.String()
		if !strings.Contains(out, "hello wor") {
			t.Errorf("partial not rendered: %q", out)
		}
		if !strings.Contains(out, "hello world\n") {
			t.Errorf("final not printed on its own line: %q", out)
		}
		if got := p.Transcript(); got != "hello world again" {
			t.Errorf("Transcript() = %q, want %q", got, "hello world again")
		}
	})

	t.Run("empty final clears partial", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewLivePrinter(&buf, false)

		p.Handle(events.Event{Kind: events.Transcript, Text: "um"})
		p.Handle(events.Event{Kind: events.Transcript, Final: true})

		if got := p.Transcript(); got != "" {
			t.Errorf("Transcript() = %q, want empty", got)
		}
	})

	t.Run("levels hidden unless enabled", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewLivePrinter(&buf, false)
		p.Handle(events.Level(-10, true))
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}

		buf.Reset()
		p = NewLivePrinter(&buf, true)
		p.Handle(events.Level(0, true))
		if !strings.Contains(buf.String(), strings.Repeat("█", meterWidth)) {
			t.Errorf("expected full meter, got %q", buf.String())
		}
	})

	t.Run("states and errors", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewLivePrinter(&buf, false)

		p.Handle(events.State("recording"))
		p.Handle(events.State("session abc"))
		p.Handle(events.Event{Kind: events.ConnectionChanged, State: "reconnecting"})
		p.Handle(events.Event{Kind: events.Error, Code: "NETWORK_LOST", Message: "gone", Recoverable: true})

		out := buf.String()
		for _, want := range []string{"recording", "connection reconnecting", "NETWORK_LOST: gone"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q: %q", want, out)
			}
		}
		if strings.Contains(out, "session abc") {
			t.Errorf("session id should not be printed: %q", out)
		}
	})
}

func TestLevelMeter(t *testing.T) {
	tests := []struct {
		db     float64
		filled int
	}{
		{-100, 0},
		{-60, 0},
		{-30, meterWidth / 2},
		{0, meterWidth},
		{6, meterWidth},
	}

	for _, tt := range tests {
		got := levelMeter(tt.db, false)
		if n := strings.Count(got, "█"); n != tt.filled {
			t.Errorf("levelMeter(%v) filled = %d, want %d", tt.db, n, tt.filled)
		}
		if n := strings.Count(got, "█") + strings.Count(got, "░"); n != meterWidth {
			t.Errorf("levelMeter(%v) width = %d, want %d", tt.db, n, meterWidth)
		}
	}
}
