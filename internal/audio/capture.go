package audio

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNoDevice             = errors.New("no input device available")
	ErrConfigurationFailed  = errors.New("audio configuration failed")
	ErrStreamCreationFailed = errors.New("audio stream creation failed")
	ErrCaptureFailed        = errors.New("audio capture failed")
)

// DeviceInfo describes an input device exposed by a Backend.
type DeviceInfo struct {
	ID          string
	Name        string
	SampleRates []int
	Channels    int
	Default     bool
}

// StreamParams is what the capturer asks a backend to open.
type StreamParams struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// Stream is a platform capture stream handle.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend is the platform audio capability the capturer runs on. The
// callback receives interleaved float32 samples and may run on a
// platform thread; it must not block.
type Backend interface {
	Devices() ([]DeviceInfo, error)
	DefaultDevice() (DeviceInfo, error)
	Open(dev DeviceInfo, params StreamParams, cb func(in []float32)) (Stream, error)
}

type Config struct {
	DeviceID       string
	SampleRate     int
	Channels       int
	BufferDuration time.Duration // callback period
	BufferSeconds  float64       // ring buffer length
}

func DefaultConfig() Config {
	return Config{
		SampleRate:     48000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
		BufferSeconds:  2,
	}
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: invalid sample rate %d", ErrConfigurationFailed, c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("%w: invalid channel count %d", ErrConfigurationFailed, c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("%w: invalid buffer duration %v", ErrConfigurationFailed, c.BufferDuration)
	}
	if c.BufferSeconds <= 0 {
		return fmt.Errorf("%w: invalid ring buffer length %v", ErrConfigurationFailed, c.BufferSeconds)
	}
	return nil
}

// FramesPerBuffer is the number of frames delivered per callback.
func (c Config) FramesPerBuffer() int {
	return int(int64(c.SampleRate) * int64(c.BufferDuration) / int64(time.Second))
}

func (c Config) ringCapacity() int {
	return int(float64(c.SampleRate*c.Channels)*c.BufferSeconds) + 1
}

// Capturer pulls audio from a Backend into a RingBuffer.
type Capturer struct {
	backend Backend

	mu     sync.Mutex // guards config, stream and ring
	config Config
	stream Stream
	ring   *RingBuffer

	running atomic.Bool
	dropped atomic.Uint64
}

func NewCapturer(backend Backend, config Config) *Capturer {
	return &Capturer{
		backend: backend,
		config:  config,
		ring:    NewRingBuffer(config.ringCapacity()),
	}
}

func (c *Capturer) Devices() ([]DeviceInfo, error) {
	devices, err := c.backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return devices, nil
}

func (c *Capturer) DefaultDevice() (DeviceInfo, error) {
	dev, err := c.backend.DefaultDevice()
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return dev, nil
}

// Configure replaces the capture config. It fails while running.
func (c *Capturer) Configure(config Config) error {
	if err := config.validate(); err != nil {
		return err
	}
	if c.running.Load() {
		return fmt.Errorf("%w: capturer is running", ErrConfigurationFailed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = config
	c.ring = NewRingBuffer(config.ringCapacity())
	return nil
}

func (c *Capturer) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Start opens and starts a stream on the configured device. Starting a
// running capturer is a no-op.
func (c *Capturer) Start() error {
	if c.running.Load() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.config.validate(); err != nil {
		return err
	}

	dev, err := c.resolveDevice()
	if err != nil {
		return err
	}

	params := StreamParams{
		SampleRate:      c.config.SampleRate,
		Channels:        c.config.Channels,
		FramesPerBuffer: c.config.FramesPerBuffer(),
	}

	// unread samples belong to the previous session
	ring := c.ring
	ring.Clear()

	channels := params.Channels
	stream, err := c.backend.Open(dev, params, func(in []float32) {
		if !c.running.Load() {
			return
		}
		total := len(in)
		// only whole interleaved groups go in, so channels stay aligned
		if free := ring.Capacity() - 1 - ring.Available(); free < total {
			in = in[:free-free%channels]
		}
		if n := ring.Write(in); n < total {
			c.dropped.Add(uint64(total - n))
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStreamCreationFailed, err)
	}

	c.running.Store(true)
	if err := stream.Start(); err != nil {
		c.running.Store(false)
		_ = stream.Close()
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	c.stream = stream

	log.Printf("Capture: started on %q (%d Hz, %d ch, %d frames/buffer)",
		dev.Name, params.SampleRate, params.Channels, params.FramesPerBuffer)
	return nil
}

func (c *Capturer) resolveDevice() (DeviceInfo, error) {
	if c.config.DeviceID == "" {
		dev, err := c.backend.DefaultDevice()
		if err != nil {
			return DeviceInfo{}, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		return dev, nil
	}

	devices, err := c.backend.Devices()
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	for _, d := range devices {
		if d.ID == c.config.DeviceID || d.Name == c.config.DeviceID {
			return d, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("%w: device %q not found", ErrNoDevice, c.config.DeviceID)
}

// Stop halts delivery and releases the stream. The handle is released even
// when stopping it fails, so a later Start can open a fresh one.
func (c *Capturer) Stop() error {
	c.running.Store(false)

	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream == nil {
		return nil
	}

	stopErr := stream.Stop()
	closeErr := stream.Close()
	if stopErr != nil {
		return fmt.Errorf("%w: stop stream: %v", ErrCaptureFailed, stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close stream: %v", ErrCaptureFailed, closeErr)
	}

	log.Printf("Capture: stopped (%d samples dropped)", c.dropped.Load())
	return nil
}

func (c *Capturer) IsRunning() bool {
	return c.running.Load()
}

// Buffer exposes the ring buffer the callback writes into.
func (c *Capturer) Buffer() *RingBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring
}

// Dropped is the number of samples lost because the ring buffer was full.
func (c *Capturer) Dropped() uint64 {
	return c.dropped.Load()
}

// ReadFrame drains up to maxSamples buffered samples into a Frame.
func (c *Capturer) ReadFrame(maxSamples int) (Frame, bool) {
	c.mu.Lock()
	ring, cfg := c.ring, c.config
	c.mu.Unlock()

	samples, ok := ring.Read(maxSamples)
	if !ok {
		return Frame{}, false
	}
	return Frame{
		Samples:    samples,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Timestamp:  time.Now(),
	}, true
}
