package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leonardotrapani/audioflow/internal/apperror"
	"github.com/leonardotrapani/audioflow/internal/wsclient"
)

// scriptedServer replies to audio with a partial and to a commit with a
// committed transcript.
func scriptedServer(t *testing.T, final string) *httptest.Server {
	return mockScribeServer(t, func(conn *websocket.Conn) {
		if !readConfigure(conn) {
			return
		}
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["commit"] == true {
				conn.WriteJSON(map[string]any{"message_type": "committed_transcript", "text": final})
				continue
			}
			conn.WriteJSON(map[string]any{"message_type": "partial_transcript", "text": "partial"})
		}
	})
}

// waitFor reads events until one of kind arrives.
func waitFor(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed while waiting for %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", kind)
		}
	}
}

func TestStreamer_StreamAndStop(t *testing.T) {
	srv := scriptedServer(t, "hello world")
	st := NewStreamer(newTestSession(srv), 0)

	audio := make(chan []float32, 4)
	events, err := st.Start(context.Background(), audio)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	audio <- []float32{0.1, 0.2, 0.3}
	ev := waitFor(t, events, PartialTranscript)
	if ev.Text != "partial" {
		t.Errorf("partial text = %q", ev.Text)
	}

	close(audio)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if got := st.FinalText(); got != "hello world" {
		t.Errorf("FinalText() = %q, want %q", got, "hello world")
	}
	if st.Session().IsConnected() {
		t.Error("session should be disconnected after Stop")
	}

	for range events {
	}
}

func TestStreamer_AccumulatesCommits(t *testing.T) {
	srv := scriptedServer(t, "again")
	st := NewStreamer(newTestSession(srv), 0)

	audio := make(chan []float32)
	events, err := st.Start(context.Background(), audio)
	if err != nil {
		t.Fatal(err)
	}

	if err := st.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	waitFor(t, events, CommittedTranscript)
	close(audio)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	if got := st.FinalText(); got != "again again" {
		t.Errorf("FinalText() = %q, want %q", got, "again again")
	}
}

func TestStreamer_StopSendsQueuedAudioBeforeCommit(t *testing.T) {
	const chunks = 64

	var mu sync.Mutex
	var order []string // "audio" or "commit", as received
	srv := mockScribeServer(t, func(conn *websocket.Conn) {
		if !readConfigure(conn) {
			return
		}
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			kind := "audio"
			if msg["commit"] == true {
				kind = "commit"
			}
			mu.Lock()
			order = append(order, kind)
			mu.Unlock()
			if kind == "commit" {
				conn.WriteJSON(map[string]any{"message_type": "committed_transcript", "text": "tail"})
			}
		}
	})
	st := NewStreamer(newTestSession(srv), 0)

	audio := make(chan []float32, chunks)
	events, err := st.Start(context.Background(), audio)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for range events {
		}
	}()

	for i := 0; i < chunks; i++ {
		audio <- make([]float32, 160)
	}
	close(audio)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	commitAt := -1
	for i, kind := range order {
		if kind == "commit" {
			commitAt = i
			break
		}
	}
	if commitAt != chunks {
		t.Errorf("commit arrived after %d audio chunks, want %d (order %v)", commitAt, chunks, order)
	}
	if got := st.FinalText(); got != "tail" {
		t.Errorf("FinalText() = %q, want %q", got, "tail")
	}
}

func TestStreamer_StopWaitsForItsOwnCommit(t *testing.T) {
	// every commit is answered late, in order
	srv := mockScribeServer(t, func(conn *websocket.Conn) {
		if !readConfigure(conn) {
			return
		}
		n := 0
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["commit"] != true {
				continue
			}
			n++
			time.Sleep(100 * time.Millisecond)
			conn.WriteJSON(map[string]any{"message_type": "committed_transcript", "text": fmt.Sprintf("utterance %d", n)})
		}
	})
	st := NewStreamer(newTestSession(srv), 0)

	audio := make(chan []float32)
	events, err := st.Start(context.Background(), audio)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for range events {
		}
	}()

	if err := st.Commit(); err != nil {
		t.Fatal(err)
	}
	close(audio)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := st.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if got, want := st.FinalText(), "utterance 1 utterance 2"; got != want {
		t.Errorf("FinalText() = %q, want %q", got, want)
	}
}

func TestStreamer_AbortSkipsCommit(t *testing.T) {
	var commits atomic.Int32
	srv := mockScribeServer(t, func(conn *websocket.Conn) {
		if !readConfigure(conn) {
			return
		}
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["commit"] == true {
				commits.Add(1)
			}
		}
	})
	st := NewStreamer(newTestSession(srv), 0)

	audio := make(chan []float32, 1)
	if _, err := st.Start(context.Background(), audio); err != nil {
		t.Fatal(err)
	}
	audio <- []float32{0.1, 0.2}

	st.Abort()

	if st.Session().IsConnected() {
		t.Error("session should be disconnected after Abort")
	}
	if got := st.FinalText(); got != "" {
		t.Errorf("FinalText() = %q, want empty", got)
	}
	if n := commits.Load(); n != 0 {
		t.Errorf("server saw %d commits, want 0", n)
	}
}

func TestStreamer_StartTwice(t *testing.T) {
	srv := scriptedServer(t, "")
	st := NewStreamer(newTestSession(srv), 0)

	if _, err := st.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	defer st.Stop(context.Background())

	if _, err := st.Start(context.Background(), nil); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestStreamer_StopWithoutStart(t *testing.T) {
	st := NewStreamer(NewSession(wsclient.New(wsclient.DefaultConfig()), DefaultConfig()), 0)
	if err := st.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestStreamer_StartAuthFailure(t *testing.T) {
	srv := scriptedServer(t, "")
	cfg := wsclient.DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	st := NewStreamer(NewSession(wsclient.New(cfg), DefaultConfig()), 0)

	if _, err := st.Start(context.Background(), nil); !errors.Is(err, wsclient.ErrAuthenticationFailed) {
		t.Fatalf("Start() error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestStreamer_ReconnectsAfterDrop(t *testing.T) {
	var connections atomic.Int32
	srv := mockScribeServer(t, func(conn *websocket.Conn) {
		n := connections.Add(1)
		if !readConfigure(conn) {
			return
		}
		if n == 1 {
			conn.UnderlyingConn().Close()
			return
		}
		conn.WriteJSON(map[string]any{"message_type": "committed_transcript", "text": "after reconnect"})
		drain(conn)
	})

	st := NewStreamer(newTestSession(srv), 0)
	events, err := st.Start(context.Background(), make(chan []float32))
	if err != nil {
		t.Fatal(err)
	}

	ev := waitFor(t, events, Error)
	if ev.Code != string(apperror.NetworkLost) {
		t.Errorf("error code = %q, want %q", ev.Code, apperror.NetworkLost)
	}
	ev = waitFor(t, events, CommittedTranscript)
	if ev.Text != "after reconnect" {
		t.Errorf("text = %q", ev.Text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	st.Stop(ctx)

	if got := connections.Load(); got != 2 {
		t.Errorf("connections = %d, want 2", got)
	}
	if got := st.FinalText(); got != "after reconnect" {
		t.Errorf("FinalText() = %q", got)
	}
}

func TestStreamer_ReconnectGivesUp(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) > 1 {
			http.Error(w, "revoked", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if readConfigure(conn) {
			conn.UnderlyingConn().Close()
		}
	}))
	defer srv.Close()

	st := NewStreamer(newTestSession(srv), 0)
	events, err := st.Start(context.Background(), make(chan []float32))
	if err != nil {
		t.Fatal(err)
	}

	var last Event
	var codes []string
	for ev := range events {
		if ev.Kind == Error {
			codes = append(codes, ev.Code)
		}
		last = ev
	}

	if last.Kind != Disconnected {
		t.Errorf("last event = %v, want Disconnected", last.Kind)
	}
	want := []string{string(apperror.NetworkLost), string(apperror.NetworkAuthFailed)}
	if len(codes) != len(want) || codes[0] != want[0] || codes[1] != want[1] {
		t.Errorf("error codes = %v, want %v", codes, want)
	}

	if err := st.Stop(context.Background()); !errors.Is(err, wsclient.ErrAuthenticationFailed) {
		t.Errorf("Stop() error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestStreamer_KeepAlivePing(t *testing.T) {
	var pings atomic.Int32
	srv := mockScribeServer(t, func(conn *websocket.Conn) {
		conn.SetPingHandler(func(data string) error {
			pings.Add(1)
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		drain(conn)
	})

	st := NewStreamer(newTestSession(srv), 40*time.Millisecond)
	if _, err := st.Start(context.Background(), make(chan []float32)); err != nil {
		t.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		st.Stop(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pings.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pings.Load() == 0 {
		t.Error("idle connection was never pinged")
	}
}
