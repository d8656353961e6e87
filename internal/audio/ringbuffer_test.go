package audio

import (
	"sync"
	"testing"
)

func TestRingBuffer_WriteRead(t *testing.T) {
	rb := NewRingBuffer(100)

	if n := rb.Write([]float32{1, 2, 3, 4, 5}); n != 5 {
		t.Fatalf("Write() = %d, want 5", n)
	}
	if got := rb.Available(); got != 5 {
		t.Errorf("Available() = %d, want 5", got)
	}

	got, ok := rb.Read(3)
	if !ok {
		t.Fatal("Read() returned no data")
	}
	want := []float32{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Read()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if got := rb.Available(); got != 2 {
		t.Errorf("Available() after read = %d, want 2", got)
	}
}

func TestRingBuffer_CapacityMinusOne(t *testing.T) {
	rb := NewRingBuffer(4)

	if n := rb.Write([]float32{1, 2, 3, 4, 5}); n != 3 {
		t.Fatalf("Write() into capacity 4 = %d, want 3", n)
	}
	if n := rb.Write([]float32{9}); n != 0 {
		t.Errorf("Write() into full buffer = %d, want 0", n)
	}

	got, _ := rb.Read(10)
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Read() = %v, want [1 2 3]", got)
	}
}

func TestRingBuffer_Empty(t *testing.T) {
	rb := NewRingBuffer(8)

	if _, ok := rb.Read(4); ok {
		t.Error("Read() on empty buffer should report no data")
	}
	if _, ok := rb.Read(0); ok {
		t.Error("Read(0) should report no data")
	}
	if n := rb.Write(nil); n != 0 {
		t.Errorf("Write(nil) = %d, want 0", n)
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer(5)

	for round := 0; round < 10; round++ {
		in := []float32{float32(round), float32(round) + 0.5, float32(round) + 0.25}
		if n := rb.Write(in); n != 3 {
			t.Fatalf("round %d: Write() = %d, want 3", round, n)
		}
		out, ok := rb.Read(3)
		if !ok || len(out) != 3 {
			t.Fatalf("round %d: Read() = %v, %v", round, out, ok)
		}
		for i := range in {
			if out[i] != in[i] {
				t.Fatalf("round %d: out[%d] = %v, want %v", round, i, out[i], in[i])
			}
		}
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(16)
	rb.Write([]float32{1, 2, 3})
	rb.Clear()

	if got := rb.Available(); got != 0 {
		t.Errorf("Available() after Clear = %d, want 0", got)
	}
	if n := rb.Write(make([]float32, 20)); n != 15 {
		t.Errorf("Write() after Clear = %d, want 15", n)
	}
}

func TestRingBuffer_MinimumCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	if rb.Capacity() != 2 {
		t.Errorf("Capacity() = %d, want 2", rb.Capacity())
	}
	if n := rb.Write([]float32{1, 2}); n != 1 {
		t.Errorf("Write() = %d, want 1", n)
	}
}

func TestRingBuffer_ProducerConsumer(t *testing.T) {
	rb := NewRingBuffer(64)
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		next := 0
		for next < total {
			chunk := make([]float32, 0, 7)
			for i := next; i < min(next+7, total); i++ {
				chunk = append(chunk, float32(i))
			}
			next += rb.Write(chunk)
		}
	}()

	expected := 0
	for expected < total {
		out, ok := rb.Read(13)
		if !ok {
			continue
		}
		for _, s := range out {
			if int(s) != expected {
				t.Fatalf("out of order sample: got %v, want %d", s, expected)
			}
			expected++
		}
	}
	wg.Wait()
}

func TestRingBuffer_PartialReads(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]float32{1, 2, 3, 4, 5})

	first, _ := rb.Read(2)
	second, _ := rb.Read(3)
	if len(first) != 2 || first[0] != 1 || first[1] != 2 {
		t.Errorf("first Read() = %v, want [1 2]", first)
	}
	if len(second) != 3 || second[0] != 3 || second[2] != 5 {
		t.Errorf("second Read() = %v, want [3 4 5]", second)
	}
	if _, ok := rb.Read(1); ok {
		t.Error("buffer should be drained")
	}
}

func TestRingBuffer_WrapAcrossEnd(t *testing.T) {
	rb := NewRingBuffer(10)

	rb.Write([]float32{1, 2, 3, 4, 5, 6, 7})
	rb.Read(5)
	if n := rb.Write([]float32{8, 9, 10}); n != 3 {
		t.Fatalf("Write() = %d, want 3", n)
	}

	got, ok := rb.Read(5)
	if !ok {
		t.Fatal("Read() returned no data")
	}
	want := []float32{6, 7, 8, 9, 10}
	if len(got) != len(want) {
		t.Fatalf("Read() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Read()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
