// Package wsclient is the streaming transport to the speech-to-text
// service: an authenticated WebSocket with an explicit connection state
// machine.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionFailed     = errors.New("connection failed")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrConnectionLost       = errors.New("connection lost")
	ErrSendFailed           = errors.New("send failed")
	ErrReceiveTimeout       = errors.New("receive timed out")
)

const (
	inboxSize         = 64
	maxReconnectDelay = 30 * time.Second
)

type Config struct {
	URL    string
	Query  url.Values
	APIKey string
	Header http.Header

	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	ReceiveTimeout       time.Duration // longest a single Receive waits
	ReconnectDelay       time.Duration // first backoff step, doubled per attempt
	MaxReconnectAttempts int
	KeepAliveInterval    time.Duration // idle time before the owner should ping

	SampleRate int // sample_rate sent with audio chunks
}

func DefaultConfig() Config {
	return Config{
		URL:                  "wss://api.elevenlabs.io/v1/speech-to-text/realtime",
		ConnectTimeout:       30 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReceiveTimeout:       100 * time.Millisecond,
		ReconnectDelay:       time.Second,
		MaxReconnectAttempts: 5,
		KeepAliveInterval:    30 * time.Second,
		SampleRate:           16000,
	}
}

type inbound struct {
	msg Message
	err error
}

// link is one live socket and its reader goroutine.
type link struct {
	conn       *websocket.Conn
	inbox      chan inbound
	closed     chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
}

func (l *link) shutdown() {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.conn.Close()
	})
}

func (l *link) push(in inbound) bool {
	select {
	case l.inbox <- in:
		return true
	case <-l.closed:
		return false
	}
}

// Client owns one connection at a time. Sends may come from one goroutine
// and Receive from another.
type Client struct {
	config Config
	dialer *websocket.Dialer

	stateMu  sync.Mutex
	state    State
	observer func(State)

	linkMu sync.Mutex
	link   *link

	writeMu      sync.Mutex
	lastActivity atomic.Int64
}

func New(config Config) *Client {
	c := &Client{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.ConnectTimeout,
		},
	}
	c.touch()
	return c
}

func (c *Client) Config() Config { return c.config }

// OnStateChange registers fn to be called after every state transition.
// It must be set before the client is used.
func (c *Client) OnStateChange(fn func(State)) {
	c.stateMu.Lock()
	c.observer = fn
	c.stateMu.Unlock()
}

func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State().IsConnected()
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	fn := c.observer
	c.stateMu.Unlock()

	if fn != nil {
		fn(s)
	}
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity is when a frame was last sent or received.
func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Client) IdleFor() time.Duration {
	return time.Since(c.LastActivity())
}

// Connect performs the authenticated handshake. It is a no-op when already
// connected.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	c.setState(stateOf(Connecting))
	if err := c.dial(ctx); err != nil {
		c.setState(failed(err.Error()))
		return err
	}
	return nil
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %v", ErrConnectionFailed, err)
	}
	if len(c.config.Query) > 0 {
		q := u.Query()
		for k, vs := range c.config.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// dial opens a socket and installs it. State is moved to Connected on
// success and left alone on failure.
func (c *Client) dial(ctx context.Context) error {
	if c.config.APIKey == "" {
		return fmt.Errorf("%w: missing API key", ErrAuthenticationFailed)
	}

	wsURL, err := c.endpoint()
	if err != nil {
		return err
	}

	header := http.Header{}
	for k, vs := range c.config.Header {
		header[k] = append([]string(nil), vs...)
	}
	header.Set("xi-api-key", c.config.APIKey)

	dialCtx := ctx
	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	log.Printf("wsclient: connecting to %s", c.config.URL)
	conn, resp, err := c.dialer.DialContext(dialCtx, wsURL, header)
	if err != nil {
		if resp != nil {
			log.Printf("wsclient: dial failed with status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return fmt.Errorf("%w: server returned %s", ErrAuthenticationFailed, resp.Status)
			}
		}
		var ne net.Error
		timedOut := errors.Is(dialCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
		if timedOut && ctx.Err() == nil {
			return fmt.Errorf("%w: connection timed out", ErrConnectionFailed)
		}
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	l := &link{
		conn:       conn,
		inbox:      make(chan inbound, inboxSize),
		closed:     make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	conn.SetPingHandler(func(data string) error {
		l.push(inbound{msg: Message{Type: PingMessage, Data: []byte(data)}})
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})
	conn.SetPongHandler(func(data string) error {
		l.push(inbound{msg: Message{Type: PongMessage, Data: []byte(data)}})
		return nil
	})

	c.linkMu.Lock()
	old := c.link
	c.link = l
	c.linkMu.Unlock()
	if old != nil {
		old.shutdown()
		<-old.readerDone
	}

	go c.readLoop(l)

	c.touch()
	c.setState(stateOf(Connected))
	log.Printf("wsclient: connected")
	return nil
}

func (c *Client) readLoop(l *link) {
	defer close(l.readerDone)
	defer close(l.inbox)

	for {
		mt, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closed:
				return
			default:
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
				l.push(inbound{msg: Message{Type: CloseMessage, Data: []byte(ce.Text), Code: ce.Code}})
				return
			}
			l.push(inbound{err: err})
			return
		}

		typ := TextMessage
		if mt == websocket.BinaryMessage {
			typ = BinaryMessage
		}
		if !l.push(inbound{msg: Message{Type: typ, Data: data}}) {
			return
		}
	}
}

// release detaches l if it is still current and closes it.
func (c *Client) release(l *link) {
	c.linkMu.Lock()
	if c.link == l {
		c.link = nil
	}
	c.linkMu.Unlock()
	l.shutdown()
}

func (c *Client) current() *link {
	c.linkMu.Lock()
	defer c.linkMu.Unlock()
	return c.link
}

// Disconnect sends a close frame when possible, tears down the socket and
// always leaves the client Disconnected.
func (c *Client) Disconnect() {
	c.linkMu.Lock()
	l := c.link
	c.link = nil
	c.linkMu.Unlock()

	if l != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			log.Printf("wsclient: close frame not sent: %v", err)
		}
		l.shutdown()
		<-l.readerDone
		log.Printf("wsclient: disconnected")
	}

	c.setState(stateOf(Disconnected))
}

func (c *Client) write(messageType int, data []byte) error {
	l := c.current()
	if l == nil {
		return ErrConnectionLost
	}

	c.writeMu.Lock()
	if c.config.WriteTimeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	err := l.conn.WriteMessage(messageType, data)
	c.writeMu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	c.touch()
	return nil
}

func (c *Client) SendText(text string) error {
	return c.write(websocket.TextMessage, []byte(text))
}

func (c *Client) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode json: %v", ErrSendFailed, err)
	}
	return c.write(websocket.TextMessage, data)
}

// SendAudio encodes samples as 16-bit PCM and sends an input_audio_chunk.
// It never reconnects on its own.
func (c *Client) SendAudio(samples []float32) error {
	msg, err := AudioMessage(samples, c.config.SampleRate)
	if err != nil {
		return fmt.Errorf("%w: encode audio: %v", ErrSendFailed, err)
	}
	return c.write(websocket.TextMessage, msg)
}

func (c *Client) SendConfigure(modelID, languageCode string) error {
	msg, err := ConfigureMessage(modelID, languageCode)
	if err != nil {
		return fmt.Errorf("%w: encode configure: %v", ErrSendFailed, err)
	}
	return c.write(websocket.TextMessage, msg)
}

// SendCommit forces the service to finalize buffered audio.
func (c *Client) SendCommit() error {
	msg, err := CommitMessage(c.config.SampleRate)
	if err != nil {
		return fmt.Errorf("%w: encode commit: %v", ErrSendFailed, err)
	}
	return c.write(websocket.TextMessage, msg)
}

func (c *Client) SendPing() error {
	l := c.current()
	if l == nil {
		return ErrConnectionLost
	}
	if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrSendFailed, err)
	}
	c.touch()
	return nil
}

// Receive returns the next inbound message, waiting at most ReceiveTimeout.
// A close frame is returned once; the connection is dropped with it and
// later calls fail with ErrConnectionLost.
func (c *Client) Receive(ctx context.Context) (Message, error) {
	l := c.current()
	if l == nil {
		return Message{}, ErrConnectionLost
	}

	var timeout <-chan time.Time
	if c.config.ReceiveTimeout > 0 {
		timer := time.NewTimer(c.config.ReceiveTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case in, ok := <-l.inbox:
		if !ok {
			c.release(l)
			return Message{}, ErrConnectionLost
		}
		c.touch()
		if in.err != nil {
			log.Printf("wsclient: receive error: %v", in.err)
			c.release(l)
			c.setState(failed(in.err.Error()))
			return Message{}, fmt.Errorf("%w: %v", ErrConnectionLost, in.err)
		}
		if in.msg.Type == CloseMessage {
			log.Printf("wsclient: server closed connection (code %d)", in.msg.Code)
			c.release(l)
			c.setState(stateOf(Disconnected))
		}
		return in.msg, nil
	case <-timeout:
		return Message{}, ErrReceiveTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Reconnect runs the reconnection policy: up to MaxReconnectAttempts dials
// with exponential backoff starting at ReconnectDelay. An authentication
// failure ends the sequence early.
func (c *Client) Reconnect(ctx context.Context) error {
	if l := c.current(); l != nil {
		c.release(l)
		<-l.readerDone
	}

	maxAttempts := c.config.MaxReconnectAttempts
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.setState(reconnecting(attempt, maxAttempts))

		delay := backoff(c.config.ReconnectDelay, attempt)
		log.Printf("wsclient: reconnect attempt %d/%d after %v", attempt, maxAttempts, delay)
		select {
		case <-ctx.Done():
			c.setState(failed("reconnect cancelled"))
			return ctx.Err()
		case <-time.After(delay):
		}

		err := c.dial(ctx)
		if err == nil {
			log.Printf("wsclient: reconnected")
			return nil
		}
		lastErr = err
		log.Printf("wsclient: reconnect failed: %v", err)
		if errors.Is(err, ErrAuthenticationFailed) {
			c.setState(failed(err.Error()))
			return err
		}
	}

	c.setState(failed(fmt.Sprintf("reconnection failed after %d attempts", maxAttempts)))
	if lastErr == nil {
		return fmt.Errorf("%w: no reconnect attempts configured", ErrConnectionFailed)
	}
	return fmt.Errorf("reconnection failed after %d attempts: %w", maxAttempts, lastErr)
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < maxReconnectDelay; i++ {
		d *= 2
	}
	return min(d, maxReconnectDelay)
}
