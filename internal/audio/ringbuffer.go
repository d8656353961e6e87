package audio

import (
	"sync"
	"sync/atomic"
)

// RingBuffer is a fixed-capacity FIFO of float32 samples shared by one
// producer (the capture callback) and one consumer. One slot always stays
// empty so a full buffer can be told apart from an empty one.
type RingBuffer struct {
	mu       sync.Mutex // guards buf
	buf      []float32
	capacity int
	writePos atomic.Int64
	readPos  atomic.Int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &RingBuffer{
		buf:      make([]float32, capacity),
		capacity: capacity,
	}
}

func (r *RingBuffer) Capacity() int {
	return r.capacity
}

// Write appends as many samples as fit and returns how many were accepted.
// Samples that do not fit are discarded.
func (r *RingBuffer) Write(data []float32) int {
	if len(data) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w := int(r.writePos.Load())
	rd := int(r.readPos.Load())
	free := r.free(w, rd)
	n := min(len(data), free)

	for i := 0; i < n; i++ {
		r.buf[(w+i)%r.capacity] = data[i]
	}
	r.writePos.Store(int64((w + n) % r.capacity))
	return n
}

// Read removes and returns up to max samples. ok is false when nothing was
// buffered.
func (r *RingBuffer) Read(max int) (samples []float32, ok bool) {
	if max <= 0 {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w := int(r.writePos.Load())
	rd := int(r.readPos.Load())
	avail := r.used(w, rd)
	if avail == 0 {
		return nil, false
	}

	n := min(max, avail)
	samples = make([]float32, n)
	for i := range samples {
		samples[i] = r.buf[(rd+i)%r.capacity]
	}
	r.readPos.Store(int64((rd + n) % r.capacity))
	return samples, true
}

// Available reports how many samples can be read. The value is a snapshot
// and may be stale by the time it is used.
func (r *RingBuffer) Available() int {
	return r.used(int(r.writePos.Load()), int(r.readPos.Load()))
}

// Clear drops all buffered samples.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writePos.Store(0)
	r.readPos.Store(0)
}

func (r *RingBuffer) used(w, rd int) int {
	if w >= rd {
		return w - rd
	}
	return r.capacity - rd + w
}

func (r *RingBuffer) free(w, rd int) int {
	return r.capacity - 1 - r.used(w, rd)
}
