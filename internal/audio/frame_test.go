package audio

import (
	"testing"
	"time"
)

func TestFrame_ToMono(t *testing.T) {
	tests := []struct {
		name     string
		frame    Frame
		expected []float32
	}{
		{
			name:     "stereo",
			frame:    Frame{Samples: []float32{0.2, 0.4, -1, 1, 0.5, 0.5}, SampleRate: 48000, Channels: 2},
			expected: []float32{0.3, 0, 0.5},
		},
		{
			name:     "mono copy",
			frame:    Frame{Samples: []float32{0.1, 0.2}, SampleRate: 16000, Channels: 1},
			expected: []float32{0.1, 0.2},
		},
		{
			name:     "trailing partial group",
			frame:    Frame{Samples: []float32{0.3, 0.3, 0.3, 0.6}, SampleRate: 16000, Channels: 3},
			expected: []float32{0.3, 0.6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mono := tt.frame.ToMono()
			if mono.Channels != 1 {
				t.Errorf("Channels = %d, want 1", mono.Channels)
			}
			if mono.SampleRate != tt.frame.SampleRate {
				t.Errorf("SampleRate = %d, want %d", mono.SampleRate, tt.frame.SampleRate)
			}
			if len(mono.Samples) != len(tt.expected) {
				t.Fatalf("len = %d, want %d", len(mono.Samples), len(tt.expected))
			}
			for i, want := range tt.expected {
				if diff := mono.Samples[i] - want; diff > 1e-6 || diff < -1e-6 {
					t.Errorf("sample %d = %v, want %v", i, mono.Samples[i], want)
				}
			}
		})
	}
}

func TestFrame_ToMonoDoesNotAlias(t *testing.T) {
	f := Frame{Samples: []float32{0.5}, SampleRate: 16000, Channels: 1}
	mono := f.ToMono()
	mono.Samples[0] = 0
	if f.Samples[0] != 0.5 {
		t.Error("ToMono should copy mono input")
	}
}

func TestFrame_Duration(t *testing.T) {
	f := Frame{Samples: make([]float32, 960*2), SampleRate: 48000, Channels: 2}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration() = %v, want 20ms", got)
	}
	if got := (Frame{}).Duration(); got != 0 {
		t.Errorf("zero frame Duration() = %v, want 0", got)
	}
}
