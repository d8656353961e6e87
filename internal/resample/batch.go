package resample

// Batch accepts input of any length, converting every complete chunk and
// holding the remainder until more input or Flush.
type Batch struct {
	r       *Resampler
	pending []float32
}

func NewBatch(inRate, outRate int) (*Batch, error) {
	r, err := New(inRate, outRate)
	if err != nil {
		return nil, err
	}
	return &Batch{r: r}, nil
}

func (b *Batch) Resampler() *Resampler { return b.r }

// Pending is the number of input samples waiting for a full chunk.
func (b *Batch) Pending() int { return len(b.pending) }

func (b *Batch) Process(in []float32) ([]float32, error) {
	if !b.r.NeedsResampling() {
		return b.r.Process(in)
	}

	b.pending = append(b.pending, in...)

	var out []float32
	n := 0
	for len(b.pending)-n >= chunkSize {
		chunk, err := b.r.Process(b.pending[n : n+chunkSize])
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
		n += chunkSize
	}
	b.pending = append(b.pending[:0], b.pending[n:]...)
	return out, nil
}

// Flush zero-pads the remainder to a full chunk and converts it.
func (b *Batch) Flush() ([]float32, error) {
	if len(b.pending) == 0 || !b.r.NeedsResampling() {
		return nil, nil
	}

	chunk := make([]float32, chunkSize)
	copy(chunk, b.pending)
	b.pending = b.pending[:0]
	return b.r.Process(chunk)
}

// Reset discards pending input and filter state.
func (b *Batch) Reset() {
	b.pending = b.pending[:0]
	b.r.Reset()
}
