package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestWAVDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")

	d, err := NewWAVDump(path, 16000, 1)
	if err != nil {
		t.Fatalf("NewWAVDump() error: %v", err)
	}
	if err := d.Write([]float32{0, 0.5, -0.5, 2}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if d.Frames() != 4 {
		t.Errorf("Frames() = %d, want 4", d.Frames())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("dump is not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error: %v", err)
	}
	if len(buf.Data) != 4 {
		t.Fatalf("decoded %d samples, want 4", len(buf.Data))
	}
	if buf.Data[3] != 32767 {
		t.Errorf("clipped sample = %d, want 32767", buf.Data[3])
	}
	if dec.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", dec.SampleRate)
	}
}
