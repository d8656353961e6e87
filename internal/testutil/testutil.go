package testutil

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leonardotrapani/audioflow/internal/audio"
	"github.com/leonardotrapani/audioflow/internal/config"
	"github.com/leonardotrapani/audioflow/internal/injection"
)

// TestConfig returns a valid configuration pointed at url with short
// timeouts for testing.
func TestConfig(url string) *config.Config {
	c := config.DefaultConfig()
	c.Recording.SampleRate = 16000
	c.Recording.BufferDuration = 10 * time.Millisecond
	c.Recording.Timeout = 10 * time.Second
	c.Transcription.APIKey = "test-api-key"
	c.Connection.URL = url
	c.Connection.ConnectTimeout = 2 * time.Second
	c.Connection.ReceiveTimeout = 20 * time.Millisecond
	c.Connection.ReconnectDelay = time.Millisecond
	c.Connection.MaxReconnectAttempts = 2
	c.Connection.FinalizeTimeout = 2 * time.Second
	c.Notifications.Type = "none"
	return c
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within %v", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// MockBackend implements audio.Backend with a generated signal delivered at
// the real callback rate.
type MockBackend struct {
	// Signal returns sample i of the mono signal. Defaults to a 440 Hz tone.
	Signal    func(i int) float32
	OpenError error

	opened  atomic.Int32
	running atomic.Int32
}

func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func Tone(i int) float32 {
	return float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/16000))
}

func Silence(int) float32 { return 0 }

func (m *MockBackend) Devices() ([]audio.DeviceInfo, error) {
	return []audio.DeviceInfo{{ID: "0", Name: "mock", SampleRates: []int{16000, 48000}, Channels: 2, Default: true}}, nil
}

func (m *MockBackend) DefaultDevice() (audio.DeviceInfo, error) {
	devices, _ := m.Devices()
	return devices[0], nil
}

func (m *MockBackend) Open(dev audio.DeviceInfo, params audio.StreamParams, cb func(in []float32)) (audio.Stream, error) {
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	m.opened.Add(1)
	signal := m.Signal
	if signal == nil {
		signal = Tone
	}
	period := time.Duration(params.FramesPerBuffer) * time.Second / time.Duration(params.SampleRate)
	return &mockStream{backend: m, params: params, period: period, cb: cb, signal: signal}, nil
}

// Opened is the number of streams opened so far.
func (m *MockBackend) Opened() int { return int(m.opened.Load()) }

// Running is the number of started streams not yet stopped.
func (m *MockBackend) Running() int { return int(m.running.Load()) }

type mockStream struct {
	backend *MockBackend
	params  audio.StreamParams
	period  time.Duration
	cb      func([]float32)
	signal  func(int) float32

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (s *mockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.backend.running.Add(1)

	s.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer s.wg.Done()
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()

		n := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			buf := make([]float32, 0, s.params.FramesPerBuffer*s.params.Channels)
			for i := 0; i < s.params.FramesPerBuffer; i++ {
				v := s.signal(n)
				n++
				for c := 0; c < s.params.Channels; c++ {
					buf = append(buf, v)
				}
			}
			s.cb(buf)
		}
	}(s.stop)
	return nil
}

func (s *mockStream) Stop() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	s.wg.Wait()
	s.backend.running.Add(-1)
	return nil
}

func (s *mockStream) Close() error {
	return s.Stop()
}

// MockInjector implements injection.Injector for testing
type MockInjector struct {
	InjectError error

	mu    sync.Mutex
	texts []string
}

func NewMockInjector() *MockInjector {
	return &MockInjector{}
}

func (m *MockInjector) Inject(ctx context.Context, text string) error {
	if m.InjectError != nil {
		return m.InjectError
	}
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	return nil
}

func (m *MockInjector) GetInjectedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// MockInjectorFactory returns a factory that creates the given mock injector
func MockInjectorFactory(mock *MockInjector) func(cfg injection.Config) (injection.Injector, error) {
	return func(cfg injection.Config) (injection.Injector, error) {
		return mock, nil
	}
}

// STTServer is a scripted realtime transcription endpoint. Each audio
// message is answered with a partial transcript and each commit with the
// next entry of Finals.
type STTServer struct {
	*httptest.Server

	mu          sync.Mutex
	finals      []string
	audioChunks int
	commits     int
	configured  int
	dropAfter   int // close the first connection after this many audio chunks
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewSTTServer starts a server that rejects requests without an API key.
func NewSTTServer(t *testing.T, finals ...string) *STTServer {
	t.Helper()
	s := &STTServer{finals: finals}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// URL is the ws:// address of the server.
func (s *STTServer) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// DropAfter makes the server close the first connection abruptly once n
// audio chunks arrived.
func (s *STTServer) DropAfter(n int) {
	s.mu.Lock()
	s.dropAfter = n
	s.mu.Unlock()
}

func (s *STTServer) AudioChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioChunks
}

func (s *STTServer) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Connections is the number of sessions that sent a configure message.
func (s *STTServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

type clientMessage struct {
	MessageType string `json:"message_type"`
	Commit      bool   `json:"commit"`
}

func (s *STTServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("xi-api-key") == "" {
		http.Error(w, "missing api key", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var first clientMessage
	if err := conn.ReadJSON(&first); err != nil || first.MessageType != "configure" {
		return
	}
	s.mu.Lock()
	s.configured++
	session := s.configured
	s.mu.Unlock()

	conn.WriteJSON(map[string]any{"message_type": "session_started", "session_id": "mock-session"})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		s.mu.Lock()
		if msg.Commit {
			s.commits++
			text := ""
			if len(s.finals) > 0 {
				text, s.finals = s.finals[0], s.finals[1:]
			}
			s.mu.Unlock()
			conn.WriteJSON(map[string]any{"message_type": "committed_transcript", "text": text})
			continue
		}
		s.audioChunks++
		drop := session == 1 && s.dropAfter > 0 && s.audioChunks >= s.dropAfter
		s.mu.Unlock()

		if drop {
			// no close frame, the client sees an abnormal closure
			conn.UnderlyingConn().Close()
			return
		}
		conn.WriteJSON(map[string]any{"message_type": "partial_transcript", "text": "partial"})
	}
}
