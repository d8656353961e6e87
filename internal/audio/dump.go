package audio

import (
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDump writes 16-bit PCM WAV for inspecting what was captured.
type WAVDump struct {
	mu       sync.Mutex
	file     *os.File
	enc      *wav.Encoder
	format   *goaudio.Format
	channels int
	frames   int
}

func NewWAVDump(path string, sampleRate, channels int) (*WAVDump, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav dump: %w", err)
	}
	return &WAVDump{
		file:     f,
		enc:      wav.NewEncoder(f, sampleRate, 16, channels, 1),
		format:   &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		channels: channels,
	}, nil
}

func (d *WAVDump) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(clampUnit(s) * 32767)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enc.Write(&goaudio.IntBuffer{Format: d.format, Data: data, SourceBitDepth: 16}); err != nil {
		return fmt.Errorf("write wav dump: %w", err)
	}
	d.frames += len(samples) / d.channels
	return nil
}

// Frames is how many sample frames have been written.
func (d *WAVDump) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

func (d *WAVDump) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enc.Close(); err != nil {
		d.file.Close()
		return fmt.Errorf("finalize wav dump: %w", err)
	}
	return d.file.Close()
}

func clampUnit(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
