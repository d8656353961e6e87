package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leonardotrapani/audioflow/internal/apperror"
	"github.com/leonardotrapani/audioflow/internal/wsclient"
)

const eventBuffer = 64

// Streamer runs a Session for the length of one recording: it forwards
// audio, decodes responses, accumulates committed text and reconnects when
// the connection drops.
type Streamer struct {
	session   *Session
	keepAlive time.Duration

	events     chan Event
	commitDone chan struct{}
	sendDone   chan struct{} // closed once the audio channel is drained
	done       chan struct{}
	cancel     context.CancelFunc
	stopping   atomic.Bool
	err        error

	// committed transcripts answer commits in order
	commitsSent  atomic.Int64
	commitsAcked atomic.Int64

	mu        sync.Mutex
	finalText strings.Builder
}

// NewStreamer wraps session. A keepAlive of zero disables idle pings.
func NewStreamer(session *Session, keepAlive time.Duration) *Streamer {
	return &Streamer{
		session:    session,
		keepAlive:  keepAlive,
		commitDone: make(chan struct{}, 1),
	}
}

func (s *Streamer) Session() *Session { return s.session }

// Start connects the session and begins streaming audio. The returned
// channel is closed once the streamer has stopped.
func (s *Streamer) Start(ctx context.Context, audio <-chan []float32) (<-chan Event, error) {
	if s.done != nil {
		return nil, fmt.Errorf("streamer already started")
	}
	if err := s.session.Connect(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.events = make(chan Event, eventBuffer)
	s.done = make(chan struct{})
	s.sendDone = make(chan struct{})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.sendLoop(gctx, audio) })
	g.Go(func() error { return s.receiveLoop(gctx) })

	go func() {
		err := g.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.err = err
		close(s.events)
		close(s.done)
	}()

	return s.events, nil
}

func (s *Streamer) sendLoop(ctx context.Context, audio <-chan []float32) error {
	defer close(s.sendDone)
	if audio == nil {
		return nil
	}

	var tick <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive / 2)
		defer ticker.Stop()
		tick = ticker.C
	}

	dropping := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if s.session.IsConnected() && s.session.Client().IdleFor() >= s.keepAlive {
				if err := s.session.Client().SendPing(); err != nil {
					log.Printf("transcriber: keep-alive ping failed: %v", err)
				}
			}
		case chunk, ok := <-audio:
			if !ok {
				return nil
			}
			if err := s.session.SendAudio(chunk); err != nil {
				// the receive loop owns reconnection; audio sent meanwhile is lost
				if !dropping {
					log.Printf("transcriber: dropping audio: %v", err)
				}
				dropping = true
				continue
			}
			if dropping {
				log.Printf("transcriber: audio flowing again")
				dropping = false
			}
		}
	}
}

func (s *Streamer) receiveLoop(ctx context.Context) error {
	for {
		ev, err := s.session.ReceiveEvent(ctx)
		switch {
		case err == nil:
		case errors.Is(err, wsclient.ErrReceiveTimeout):
			continue
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, wsclient.ErrConnectionLost):
			if s.stopping.Load() {
				return nil
			}
			if !s.emit(ctx, errorEvent(err)) {
				return nil
			}
			if err := s.reconnect(ctx); err != nil {
				return err
			}
			continue
		default:
			s.emit(ctx, errorEvent(err))
			return err
		}

		if ev.IsFinal() {
			s.appendFinal(ev.Text)
			s.commitsAcked.Add(1)
			select {
			case s.commitDone <- struct{}{}:
			default:
			}
		}
		if !s.emit(ctx, ev) {
			return nil
		}

		if ev.Kind == Disconnected && !s.stopping.Load() {
			if err := s.reconnect(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *Streamer) reconnect(ctx context.Context) error {
	log.Printf("transcriber: connection lost, reconnecting")
	err := s.session.Reconnect(ctx)
	if err == nil {
		// commits sent on the dropped connection are never answered
		s.commitsAcked.Store(s.commitsSent.Load())
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	log.Printf("transcriber: reconnect failed: %v", err)
	s.emit(ctx, errorEvent(err))
	s.emit(ctx, Event{Kind: Disconnected, Message: err.Error(), Timestamp: time.Now()})
	return err
}

func (s *Streamer) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func errorEvent(err error) Event {
	return Event{Kind: Error, Code: string(apperror.CodeOf(err)), Message: err.Error(), Timestamp: time.Now()}
}

func (s *Streamer) appendFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalText.Len() > 0 {
		s.finalText.WriteString(" ")
	}
	s.finalText.WriteString(text)
}

// Commit asks the service to finalize the current utterance.
func (s *Streamer) Commit() error {
	if err := s.session.Commit(); err != nil {
		return err
	}
	s.commitsSent.Add(1)
	return nil
}

// Stop waits for the closed audio channel to be sent, commits it, waits
// for the transcript answering that commit or ctx, then tears the session
// down. The caller must close the audio channel first. It returns the
// error that ended streaming, if any.
func (s *Streamer) Stop(ctx context.Context) error {
	if s.done == nil {
		return nil
	}

	select {
	case <-s.sendDone:
	case <-ctx.Done():
		log.Printf("transcriber: timed out sending buffered audio")
	case <-s.done:
	}
	s.stopping.Store(true)

	if s.session.IsConnected() && ctx.Err() == nil {
		if err := s.Commit(); err != nil {
			log.Printf("transcriber: commit failed: %v", err)
		} else {
			log.Printf("transcriber: sent commit, waiting for final transcript")
			s.awaitCommits(ctx, s.commitsSent.Load())
		}
	}

	s.cancel()
	<-s.done
	s.session.Disconnect()
	return s.err
}

// awaitCommits blocks until target commits have been answered, ctx ends
// or streaming stops.
func (s *Streamer) awaitCommits(ctx context.Context, target int64) {
	for s.commitsAcked.Load() < target {
		select {
		case <-s.commitDone:
		case <-ctx.Done():
			log.Printf("transcriber: finalize timeout")
			return
		case <-s.done:
			return
		}
	}
	log.Printf("transcriber: finalize complete")
}

// Abort tears the session down without waiting for pending transcripts.
func (s *Streamer) Abort() {
	if s.done == nil {
		return
	}
	s.stopping.Store(true)
	s.cancel()
	<-s.done
	s.session.Disconnect()
}

// FinalText is every committed transcript so far, space separated.
func (s *Streamer) FinalText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalText.String()
}
