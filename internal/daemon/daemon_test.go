package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/bus"
	"github.com/leonardotrapani/audioflow/internal/config"
	"github.com/leonardotrapani/audioflow/internal/pipeline"
	"github.com/leonardotrapani/audioflow/internal/testutil"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) add(s string) {
	n.mu.Lock()
	n.calls = append(n.calls, s)
	n.mu.Unlock()
}

func (n *recordingNotifier) RecordingChanged(on bool) { n.add(fmt.Sprintf("recording=%t", on)) }
func (n *recordingNotifier) Transcript(text string)   { n.add("transcript=" + text) }
func (n *recordingNotifier) Error(msg string)         { n.add("error=" + msg) }

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type fixture struct {
	daemon   *Daemon
	server   *testutil.STTServer
	backend  *testutil.MockBackend
	injector *testutil.MockInjector
	notifier *recordingNotifier
	released chan struct{}
}

func startDaemon(t *testing.T, finals ...string) *fixture {
	t.Helper()
	return startDaemonWith(t, nil, finals...)
}

// startDaemonWith applies extra after the fixture's own options.
func startDaemonWith(t *testing.T, extra []Option, finals ...string) *fixture {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv(config.APIKeyEnv, "")

	f := &fixture{
		server:   testutil.NewSTTServer(t, finals...),
		backend:  testutil.NewMockBackend(),
		injector: testutil.NewMockInjector(),
		notifier: &recordingNotifier{},
		released: make(chan struct{}, 8),
	}

	configPath := filepath.Join(configHome, "audioflow", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatal(err)
	}
	content := fmt.Sprintf(`
[recording]
  sample_rate = 16000
  buffer_duration = "10ms"

[transcription]
  api_key = "test-key"

[connection]
  url = %q
  receive_timeout = "20ms"
  reconnect_delay = "1ms"
  finalize_timeout = "2s"
`, f.server.URL())
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	mgr, err := config.NewManager()
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}

	opts := append([]Option{
		WithNotifier(f.notifier),
		WithBackendFactory(func(ctx context.Context, name string) (audio.Backend, func(), error) {
			return f.backend, func() { f.released <- struct{}{} }, nil
		}),
		WithPipelineOptions(pipeline.WithInjectorFactory(testutil.MockInjectorFactory(f.injector))),
	}, extra...)
	f.daemon = New(mgr, opts...)

	errCh := make(chan error, 1)
	go func() { errCh <- f.daemon.Run() }()

	testutil.WaitForCondition(t, func() bool {
		_, err := bus.SendCommand(bus.CmdStatus)
		return err == nil
	}, 2*time.Second)

	t.Cleanup(func() {
		bus.SendCommand(bus.CmdQuit)
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not exit within timeout")
		}
	})
	return f
}

func send(t *testing.T, cmd byte) string {
	t.Helper()
	out, err := bus.SendCommand(cmd)
	if err != nil {
		t.Fatalf("command %c failed: %v", cmd, err)
	}
	return out
}

func status(t *testing.T) map[string]string {
	t.Helper()
	kind, fields := bus.ParseReply(send(t, bus.CmdStatus))
	if kind != "STATUS" {
		t.Fatalf("status reply kind = %q", kind)
	}
	return fields
}

func TestDaemon_ToggleTwiceInjects(t *testing.T) {
	f := startDaemon(t, "hello from the daemon")

	if got := status(t)["status"]; got != "idle" {
		t.Fatalf("initial status = %s", got)
	}

	if out := send(t, bus.CmdToggle); !strings.HasPrefix(out, "OK started id=") {
		t.Fatalf("first toggle = %q", out)
	}
	testutil.WaitForCondition(t, func() bool { return f.server.AudioChunks() >= 2 }, 3*time.Second)

	fields := status(t)
	if fields["status"] != "recording" || fields["connected"] != "true" {
		t.Errorf("status while recording = %v", fields)
	}
	if !f.daemon.Flags().Recording() {
		t.Error("recording flag not set")
	}

	if out := send(t, bus.CmdToggle); out != "OK finishing\n" {
		t.Fatalf("second toggle = %q", out)
	}
	testutil.WaitForCondition(t, func() bool { return len(f.injector.GetInjectedTexts()) == 1 }, 3*time.Second)
	testutil.WaitForCondition(t, func() bool { return status(t)["status"] == "idle" }, 3*time.Second)

	if got := f.injector.GetInjectedTexts()[0]; got != "hello from the daemon" {
		t.Errorf("injected %q", got)
	}
	select {
	case <-f.released:
	case <-time.After(time.Second):
		t.Error("backend not released")
	}

	testutil.WaitForCondition(t, func() bool {
		calls := strings.Join(f.notifier.snapshot(), ",")
		return strings.Contains(calls, "recording=true") &&
			strings.Contains(calls, "transcript=hello from the daemon") &&
			strings.Contains(calls, "recording=false")
	}, 2*time.Second)
}

func TestDaemon_Cancel(t *testing.T) {
	f := startDaemon(t, "dropped")

	if out := send(t, bus.CmdCancel); out != "ERR idle\n" {
		t.Errorf("cancel while idle = %q", out)
	}

	send(t, bus.CmdToggle)
	testutil.WaitForCondition(t, func() bool { return f.server.AudioChunks() >= 1 }, 3*time.Second)

	if out := send(t, bus.CmdCancel); out != "OK cancelled\n" {
		t.Fatalf("cancel = %q", out)
	}
	testutil.WaitForCondition(t, func() bool { return status(t)["status"] == "idle" }, 3*time.Second)

	if texts := f.injector.GetInjectedTexts(); len(texts) != 0 {
		t.Errorf("cancelled session injected %v", texts)
	}
	if f.server.Commits() != 0 {
		t.Errorf("cancel sent %d commits", f.server.Commits())
	}
}

func TestDaemon_Commit(t *testing.T) {
	f := startDaemon(t, "first", "second")

	if out := send(t, bus.CmdCommit); out != "ERR idle\n" {
		t.Errorf("commit while idle = %q", out)
	}

	send(t, bus.CmdToggle)
	testutil.WaitForCondition(t, func() bool { return f.server.AudioChunks() >= 1 }, 3*time.Second)
	if out := send(t, bus.CmdCommit); out != "OK committed\n" {
		t.Fatalf("commit = %q", out)
	}
	testutil.WaitForCondition(t, func() bool { return f.server.Commits() == 1 }, 3*time.Second)

	send(t, bus.CmdToggle)
	testutil.WaitForCondition(t, func() bool { return len(f.injector.GetInjectedTexts()) == 1 }, 3*time.Second)
	if got := f.injector.GetInjectedTexts()[0]; !strings.HasPrefix(got, "first") {
		t.Errorf("injected %q", got)
	}
}

func TestDaemon_VersionAndUnknown(t *testing.T) {
	startDaemon(t)

	want := fmt.Sprintf("STATUS proto=%s version=%s\n", bus.ProtoVer, Version)
	if out := send(t, bus.CmdVersion); out != want {
		t.Errorf("version = %q, want %q", out, want)
	}
	if out := send(t, 'x'); out != "ERR unknown='x'\n" {
		t.Errorf("unknown command = %q", out)
	}
}

func TestDaemon_SecondInstanceRefused(t *testing.T) {
	startDaemon(t)

	mgr, err := config.NewManager()
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	if err := New(mgr, WithNotifier(&recordingNotifier{})).Run(); err == nil {
		t.Fatal("second daemon started while the first is running")
	}
}

func TestDaemon_StartFailure(t *testing.T) {
	f := startDaemonWith(t, []Option{
		WithBackendFactory(func(context.Context, string) (audio.Backend, func(), error) {
			return nil, nil, fmt.Errorf("%w: no microphone", audio.ErrNoDevice)
		}),
	})

	out := send(t, bus.CmdToggle)
	if !strings.HasPrefix(out, "ERR start_failed:") || !strings.Contains(out, "no microphone") {
		t.Errorf("toggle = %q", out)
	}
	if got := status(t)["status"]; got != "idle" {
		t.Errorf("status after failed start = %s", got)
	}
	testutil.WaitForCondition(t, func() bool {
		return strings.Contains(strings.Join(f.notifier.snapshot(), ","), "error=")
	}, 2*time.Second)
}
