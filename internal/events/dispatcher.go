package events

import (
	"log"
	"sync"
	"sync/atomic"
)

type Handler func(Event)

// Dispatcher fans events out to handlers from a single goroutine, so every
// handler sees events in publish order.
type Dispatcher struct {
	ch      chan Event
	done    chan struct{}
	mu      sync.RWMutex // guards closed against sends on ch
	closed  bool
	dropped atomic.Int64

	hmu      sync.Mutex
	handlers []Handler
}

func NewDispatcher(buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	d := &Dispatcher{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// Subscribe registers h for events published after the call.
func (d *Dispatcher) Subscribe(h Handler) {
	d.hmu.Lock()
	d.handlers = append(d.handlers, h)
	d.hmu.Unlock()
}

// Publish queues ev, blocking while the queue is full. Events published
// after Close are discarded.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	d.ch <- ev
}

// TryPublish queues ev unless the queue is full. Used for high-rate
// events such as audio levels.
func (d *Dispatcher) TryPublish(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.ch <- ev:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		d.hmu.Lock()
		handlers := d.handlers
		d.hmu.Unlock()
		for _, h := range handlers {
			d.deliver(h, ev)
		}
	}
}

func (d *Dispatcher) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: handler panic on %s: %v", ev.Kind, r)
		}
	}()
	h(ev)
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done
}
