package injection

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeTools makes only the named tools resolvable and records every
// command that would run. Commands run `true` or `false` instead.
func fakeTools(t *testing.T, available map[string]bool, failing map[string]bool) *[]string {
	t.Helper()
	var calls []string

	origLook, origCmd := lookPath, commandFunc
	t.Cleanup(func() { lookPath, commandFunc = origLook, origCmd })

	lookPath = func(file string) (string, error) {
		if available[file] {
			return "/usr/bin/" + file, nil
		}
		return "", exec.ErrNotFound
	}
	commandFunc = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, name+" "+strings.Join(args, " "))
		if failing[name] {
			return exec.CommandContext(ctx, "false")
		}
		return exec.CommandContext(ctx, "true")
	}
	return &calls
}

func TestNewInjector(t *testing.T) {
	if _, err := NewInjector(DefaultConfig()); err != nil {
		t.Fatalf("NewInjector() error: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Backends = []string{"telepathy"}
	if _, err := NewInjector(cfg); err == nil {
		t.Error("unknown backend should fail")
	}

	cfg.Backends = nil
	if _, err := NewInjector(cfg); !errors.Is(err, ErrNoBackend) {
		t.Errorf("empty backends error = %v, want ErrNoBackend", err)
	}
}

func TestInjector_EmptyText(t *testing.T) {
	inj, _ := NewInjector(DefaultConfig())
	if err := inj.Inject(context.Background(), ""); err == nil {
		t.Error("empty text should fail")
	}
}

func TestInjector_FallbackChain(t *testing.T) {
	tests := []struct {
		name      string
		available map[string]bool
		failing   map[string]bool
		wantCalls []string
		wantErr   bool
	}{
		{
			name:      "first backend wins",
			available: map[string]bool{"ydotool": true, "wtype": true, "wl-copy": true},
			wantCalls: []string{"ydotool type -- hello"},
		},
		{
			name:      "skips missing tools",
			available: map[string]bool{"wl-copy": true},
			wantCalls: []string{"wl-copy "},
		},
		{
			name:      "falls through failures",
			available: map[string]bool{"ydotool": true, "wtype": true, "wl-copy": true},
			failing:   map[string]bool{"ydotool": true},
			wantCalls: []string{"ydotool type -- hello", "wtype -- hello"},
		},
		{
			name:      "nothing available",
			available: map[string]bool{},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := fakeTools(t, tt.available, tt.failing)
			inj, err := NewInjector(Config{
				Backends:         []string{"ydotool", "wtype", "clipboard"},
				YdotoolTimeout:   time.Second,
				WtypeTimeout:     time.Second,
				ClipboardTimeout: time.Second,
			})
			if err != nil {
				t.Fatal(err)
			}

			err = inj.Inject(context.Background(), "hello")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Inject() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrNoBackend) {
				t.Errorf("error = %v, want ErrNoBackend", err)
			}
			if len(*calls) != len(tt.wantCalls) {
				t.Fatalf("calls = %q, want %q", *calls, tt.wantCalls)
			}
			for i := range tt.wantCalls {
				if (*calls)[i] != tt.wantCalls[i] {
					t.Errorf("call %d = %q, want %q", i, (*calls)[i], tt.wantCalls[i])
				}
			}
		})
	}
}

func TestYdotool_SocketCheck(t *testing.T) {
	fakeTools(t, map[string]bool{"ydotool": true, "ydotoold": true}, nil)

	y := &ydotoolBackend{socketCandidates: func() []string {
		return []string{filepath.Join(t.TempDir(), "missing.sock")}
	}}
	if err := y.Available(); err == nil {
		t.Error("missing socket should make ydotool unavailable")
	}

	// a plain file exists but does not accept connections
	stale := filepath.Join(t.TempDir(), "stale.sock")
	if err := os.WriteFile(stale, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	y.socketCandidates = func() []string { return []string{stale} }
	if err := y.Available(); err == nil {
		t.Error("stale socket should make ydotool unavailable")
	}
}

func TestYdotoolSockets(t *testing.T) {
	t.Setenv("YDOTOOL_SOCKET", "/custom.sock")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	got := ydotoolSockets()
	if got[0] != "/custom.sock" || got[1] != "/run/user/1000/.ydotool_socket" {
		t.Errorf("ydotoolSockets() = %v", got)
	}
	if got[len(got)-1] != "/tmp/.ydotool_socket" {
		t.Errorf("last candidate = %q", got[len(got)-1])
	}
}
