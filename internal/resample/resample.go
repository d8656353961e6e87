// Package resample converts mono float32 audio between sample rates with a
// windowed-sinc interpolator that keeps its filter state across chunks.
package resample

import (
	"errors"
	"fmt"
	"math"
)

// ErrResamplingFailed is returned for invalid rates or malformed input.
var ErrResamplingFailed = errors.New("resampling failed")

const (
	chunkSize = 128
	// halfWidth is the number of input samples on each side of an output
	// sample that contribute to it.
	halfWidth = 32
	// rolloff keeps the passband edge slightly below the output Nyquist.
	rolloff = 0.95
)

// Resampler converts fixed-size chunks of ChunkSize samples. When both rates
// are equal it passes input through unchanged and accepts any length.
type Resampler struct {
	inRate  int
	outRate int
	step    float64 // input samples per output sample
	cutoff  float64 // relative to input Nyquist

	history []float32
	pos     float64
}

func New(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("%w: invalid rates %d -> %d", ErrResamplingFailed, inRate, outRate)
	}
	r := &Resampler{
		inRate:  inRate,
		outRate: outRate,
		step:    float64(inRate) / float64(outRate),
		cutoff:  math.Min(1, float64(outRate)/float64(inRate)) * rolloff,
	}
	r.Reset()
	return r, nil
}

func (r *Resampler) InputRate() int  { return r.inRate }
func (r *Resampler) OutputRate() int { return r.outRate }

func (r *Resampler) NeedsResampling() bool {
	return r.inRate != r.outRate
}

// ChunkSize is the required input length for Process, or 0 when the
// resampler is a pass-through.
func (r *Resampler) ChunkSize() int {
	if !r.NeedsResampling() {
		return 0
	}
	return chunkSize
}

// Reset drops the carried filter state.
func (r *Resampler) Reset() {
	r.history = make([]float32, halfWidth)
	r.pos = halfWidth
}

func (r *Resampler) Process(in []float32) ([]float32, error) {
	if !r.NeedsResampling() {
		out := make([]float32, len(in))
		copy(out, in)
		return out, nil
	}
	if len(in) != chunkSize {
		return nil, fmt.Errorf("%w: got %d samples, want chunks of %d", ErrResamplingFailed, len(in), chunkSize)
	}

	buf := make([]float32, 0, len(r.history)+len(in))
	buf = append(buf, r.history...)
	buf = append(buf, in...)

	out := make([]float32, 0, int(float64(len(in))/r.step)+2)
	t := r.pos
	for {
		center := int(math.Floor(t))
		if center+halfWidth >= len(buf) {
			break
		}
		out = append(out, r.interpolate(buf, t, center))
		t += r.step
	}

	drop := int(math.Floor(t)) - halfWidth + 1
	drop = max(0, min(drop, len(buf)))
	r.history = append([]float32(nil), buf[drop:]...)
	r.pos = t - float64(drop)

	return out, nil
}

func (r *Resampler) interpolate(buf []float32, t float64, center int) float32 {
	var sum, weights float64
	for k := center - halfWidth + 1; k <= center+halfWidth; k++ {
		if k < 0 {
			continue
		}
		w := r.kernel(t - float64(k))
		sum += float64(buf[k]) * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return float32(sum / weights)
}

// kernel is a Blackman-windowed sinc low-pass evaluated x input samples
// from the output position.
func (r *Resampler) kernel(x float64) float64 {
	if math.Abs(x) >= halfWidth {
		return 0
	}
	window := 0.42 + 0.5*math.Cos(math.Pi*x/halfWidth) + 0.08*math.Cos(2*math.Pi*x/halfWidth)
	return r.cutoff * sinc(r.cutoff*x) * window
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}
