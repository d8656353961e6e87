package audio

import "time"

// Frame is a block of interleaved float32 samples in [-1, 1].
type Frame struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Timestamp  time.Time
}

// Duration of the frame at its sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := len(f.Samples) / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// ToMono averages each group of interleaved channel samples into one.
// A trailing partial group is averaged over the samples it has.
func (f Frame) ToMono() Frame {
	out := Frame{SampleRate: f.SampleRate, Channels: 1, Timestamp: f.Timestamp}
	if f.Channels <= 1 {
		out.Samples = make([]float32, len(f.Samples))
		copy(out.Samples, f.Samples)
		return out
	}

	n := (len(f.Samples) + f.Channels - 1) / f.Channels
	out.Samples = make([]float32, 0, n)
	for i := 0; i < len(f.Samples); i += f.Channels {
		end := min(i+f.Channels, len(f.Samples))
		var sum float32
		for _, s := range f.Samples[i:end] {
			sum += s
		}
		out.Samples = append(out.Samples, sum/float32(end-i))
	}
	return out
}
