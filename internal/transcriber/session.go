// Package transcriber drives a streaming speech-to-text session on top of
// wsclient: it sends configuration and audio, and decodes the service's
// responses into typed events.
package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/leonardotrapani/audioflow/internal/wsclient"
)

type EventKind int

const (
	SessionStarted EventKind = iota
	PartialTranscript
	CommittedTranscript
	WordDetails
	Error
	Disconnected
)

func (k EventKind) String() string {
	switch k {
	case SessionStarted:
		return "session_started"
	case PartialTranscript:
		return "partial_transcript"
	case CommittedTranscript:
		return "committed_transcript"
	case WordDetails:
		return "word_details"
	case Error:
		return "error"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type Word struct {
	Text       string
	StartMs    int64
	EndMs      int64
	Confidence float64
}

// Event is one decoded server message. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind       EventKind
	SessionID  string
	Text       string
	Confidence float64
	Words      []Word
	Code       string
	Message    string
	Timestamp  time.Time
}

// IsFinal reports whether the event carries committed text.
func (e Event) IsFinal() bool {
	return e.Kind == CommittedTranscript || e.Kind == WordDetails
}

type Config struct {
	ModelID        string
	LanguageCode   string
	AudioFormat    string
	CommitStrategy string // "vad" lets the service commit on pauses, "manual" waits for Commit
}

func DefaultConfig() Config {
	return Config{
		ModelID:        "scribe_v1",
		LanguageCode:   "en",
		AudioFormat:    "pcm_16000",
		CommitStrategy: "vad",
	}
}

// Query returns the handshake parameters the realtime endpoint expects.
func (c Config) Query() url.Values {
	q := url.Values{}
	if c.ModelID != "" {
		q.Set("model_id", c.ModelID)
	}
	if c.AudioFormat != "" {
		q.Set("audio_format", c.AudioFormat)
	}
	if c.LanguageCode != "" {
		q.Set("language_code", c.LanguageCode)
	}
	if c.CommitStrategy != "" {
		q.Set("commit_strategy", c.CommitStrategy)
	}
	return q
}

// service error message types, all surfaced as Error events
var serviceErrors = map[string]bool{
	"error":                       true,
	"auth_error":                  true,
	"quota_exceeded":              true,
	"rate_limited":                true,
	"queue_overflow":              true,
	"resource_exhausted":          true,
	"session_time_limit_exceeded": true,
	"input_error":                 true,
	"chunk_size_exceeded":         true,
	"insufficient_audio_activity": true,
	"transcriber_error":           true,
	"commit_throttled":            true,
	"unaccepted_terms":            true,
}

type serverMessage struct {
	MessageType string        `json:"message_type"`
	SessionID   string        `json:"session_id"`
	Text        string        `json:"text"`
	Confidence  *float64      `json:"confidence"`
	Words       []serverWord  `json:"words"`
	Code        flexibleValue `json:"code"`
	Message     string        `json:"message"`
	Error       string        `json:"error"`
}

type serverWord struct {
	Text       string   `json:"text"`
	Start      float64  `json:"start"` // seconds
	End        float64  `json:"end"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence"`
	Logprob    *float64 `json:"logprob"`
}

// flexibleValue accepts a string or a number.
type flexibleValue string

func (v *flexibleValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = flexibleValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = flexibleValue(n.String())
	return nil
}

// Session is one transcription session over a wsclient.Client.
type Session struct {
	client *wsclient.Client
	config Config

	mu        sync.Mutex
	sessionID string
	partial   string
	lastFinal string
}

func NewSession(client *wsclient.Client, config Config) *Session {
	return &Session{client: client, config: config}
}

func (s *Session) Client() *wsclient.Client { return s.client }

// Connect opens the socket and sends the configure message before any
// audio.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	if err := s.client.SendConfigure(s.config.ModelID, s.config.LanguageCode); err != nil {
		s.client.Disconnect()
		return fmt.Errorf("send configure: %w", err)
	}
	log.Printf("transcriber: session connected, model=%s, language=%s", s.config.ModelID, s.config.LanguageCode)
	return nil
}

// Reconnect runs the client's reconnection policy and configures the new
// socket.
func (s *Session) Reconnect(ctx context.Context) error {
	s.clearPartial()
	if err := s.client.Reconnect(ctx); err != nil {
		return err
	}
	if err := s.client.SendConfigure(s.config.ModelID, s.config.LanguageCode); err != nil {
		return fmt.Errorf("send configure: %w", err)
	}
	return nil
}

func (s *Session) Disconnect() {
	s.client.Disconnect()
	s.clearPartial()
}

func (s *Session) SendAudio(samples []float32) error {
	return s.client.SendAudio(samples)
}

func (s *Session) Commit() error {
	return s.client.SendCommit()
}

func (s *Session) IsConnected() bool      { return s.client.IsConnected() }
func (s *Session) State() wsclient.State { return s.client.State() }

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Partial is the latest uncommitted hypothesis.
func (s *Session) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial
}

func (s *Session) LastFinal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFinal
}

func (s *Session) clearPartial() {
	s.mu.Lock()
	s.partial = ""
	s.mu.Unlock()
}

// ReceiveEvent waits for the next server message that maps to an event.
// Ping, pong and binary frames are skipped. wsclient.ErrReceiveTimeout is
// returned unchanged when nothing arrived in time.
func (s *Session) ReceiveEvent(ctx context.Context) (Event, error) {
	for {
		msg, err := s.client.Receive(ctx)
		if err != nil {
			return Event{}, err
		}
		switch msg.Type {
		case wsclient.TextMessage:
			return s.decode(msg.Data), nil
		case wsclient.CloseMessage:
			s.clearPartial()
			return Event{Kind: Disconnected, Code: fmt.Sprint(msg.Code), Message: string(msg.Data), Timestamp: time.Now()}, nil
		}
	}
}

func (s *Session) decode(data []byte) Event {
	now := time.Now()

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("transcriber: parse error: %v", err)
		return Event{Kind: Error, Code: "parse_error", Message: "failed to parse message", Timestamp: now}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case msg.MessageType == "session_started":
		s.sessionID = msg.SessionID
		if s.sessionID == "" {
			s.sessionID = "unknown"
		}
		log.Printf("transcriber: session started, id=%s", s.sessionID)
		return Event{Kind: SessionStarted, SessionID: s.sessionID, Timestamp: now}

	case msg.MessageType == "partial_transcript":
		s.partial = msg.Text
		return Event{Kind: PartialTranscript, Text: msg.Text, Timestamp: now}

	case msg.MessageType == "committed_transcript":
		s.partial = ""
		s.lastFinal = msg.Text
		return Event{Kind: CommittedTranscript, Text: msg.Text, Confidence: confidence(msg.Confidence, nil), Timestamp: now}

	case msg.MessageType == "committed_transcript_with_timestamps":
		s.partial = ""
		s.lastFinal = msg.Text
		words := make([]Word, 0, len(msg.Words))
		for _, w := range msg.Words {
			if w.Type == "spacing" {
				continue
			}
			words = append(words, Word{
				Text:       w.Text,
				StartMs:    int64(math.Round(w.Start * 1000)),
				EndMs:      int64(math.Round(w.End * 1000)),
				Confidence: confidence(w.Confidence, w.Logprob),
			})
		}
		return Event{Kind: WordDetails, Text: msg.Text, Confidence: confidence(msg.Confidence, nil), Words: words, Timestamp: now}

	case serviceErrors[msg.MessageType]:
		code := string(msg.Code)
		if code == "" {
			code = msg.MessageType
		}
		message := msg.Message
		if message == "" {
			message = msg.Error
		}
		if message == "" {
			message = "unknown error"
		}
		log.Printf("transcriber: service error %s: %s", code, message)
		return Event{Kind: Error, Code: code, Message: message, Timestamp: now}

	default:
		log.Printf("transcriber: unknown message type: %q", msg.MessageType)
		return Event{Kind: Error, Code: "unknown_type", Message: fmt.Sprintf("unknown message type: %s", msg.MessageType), Timestamp: now}
	}
}

func confidence(c, logprob *float64) float64 {
	switch {
	case c != nil:
		return *c
	case logprob != nil:
		return math.Exp(*logprob)
	default:
		return 1.0
	}
}
