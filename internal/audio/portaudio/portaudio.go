// Package portaudio captures microphone input through PortAudio.
package portaudio

import (
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/leonardotrapani/audioflow/internal/audio"
)

// Backend implements audio.Backend. Initialize must be called before use
// and Terminate once the process is done with audio.
type Backend struct {
	mu          sync.Mutex
	initialized bool
}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}
	log.Printf("portaudio: initializing")
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initializing failed: %w", err)
	}
	b.initialized = true
	return nil
}

func (b *Backend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}
	log.Printf("portaudio: terminating")
	b.initialized = false
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminating failed: %w", err)
	}
	return nil
}

func (b *Backend) Devices() ([]audio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: listing devices failed: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []audio.DeviceInfo
	for i, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, toDeviceInfo(i, d, def != nil && d.Name == def.Name))
	}
	return out, nil
}

func (b *Backend) DefaultDevice() (audio.DeviceInfo, error) {
	def, err := portaudio.DefaultInputDevice()
	if err != nil {
		return audio.DeviceInfo{}, fmt.Errorf("portaudio: no default input device: %w", err)
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return audio.DeviceInfo{}, fmt.Errorf("portaudio: listing devices failed: %w", err)
	}
	for i, d := range devices {
		if d == def || d.Name == def.Name {
			return toDeviceInfo(i, d, true), nil
		}
	}
	return toDeviceInfo(-1, def, true), nil
}

func (b *Backend) Open(dev audio.DeviceInfo, params audio.StreamParams, cb func(in []float32)) (audio.Stream, error) {
	pd, err := lookup(dev)
	if err != nil {
		return nil, err
	}

	sp := portaudio.HighLatencyParameters(pd, nil)
	sp.Input.Channels = params.Channels
	sp.SampleRate = float64(params.SampleRate)
	sp.FramesPerBuffer = params.FramesPerBuffer

	s, err := portaudio.OpenStream(sp, cb)
	if err != nil {
		return nil, fmt.Errorf("portaudio: opening stream on %q failed: %w", dev.Name, err)
	}
	log.Printf("portaudio: opened stream on %q", dev.Name)
	return &stream{s: s, name: dev.Name}, nil
}

func lookup(dev audio.DeviceInfo) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: listing devices failed: %w", err)
	}
	if idx, err := strconv.Atoi(dev.ID); err == nil && idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	for _, d := range devices {
		if d.Name == dev.Name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: device %q not found", dev.Name)
}

func toDeviceInfo(idx int, d *portaudio.DeviceInfo, isDefault bool) audio.DeviceInfo {
	return audio.DeviceInfo{
		ID:          strconv.Itoa(idx),
		Name:        d.Name,
		SampleRates: []int{int(d.DefaultSampleRate)},
		Channels:    d.MaxInputChannels,
		Default:     isDefault,
	}
}

type stream struct {
	s    *portaudio.Stream
	name string
}

func (s *stream) Start() error {
	if err := s.s.Start(); err != nil {
		return fmt.Errorf("portaudio: starting stream on %q failed: %w", s.name, err)
	}
	return nil
}

func (s *stream) Stop() error {
	if err := s.s.Stop(); err != nil {
		return fmt.Errorf("portaudio: stopping stream on %q failed: %w", s.name, err)
	}
	return nil
}

func (s *stream) Close() error {
	if err := s.s.Close(); err != nil {
		return fmt.Errorf("portaudio: closing stream on %q failed: %w", s.name, err)
	}
	return nil
}
