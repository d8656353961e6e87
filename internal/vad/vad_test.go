package vad

import (
	"math"
	"testing"
)

func frame(v float32) []float32 {
	f := make([]float32, 480)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ThresholdDB != -50 || cfg.SmoothingFactor != 0.3 || cfg.SilenceTimeoutFrames != 15 || cfg.MinSpeechFrames != 3 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestDetector_Silence(t *testing.T) {
	d := New(DefaultConfig())
	if got := d.Detect(frame(0.0001)); got != Silence {
		t.Errorf("Detect(quiet) = %v, want silence", got)
	}
}

func TestDetector_Speech(t *testing.T) {
	d := New(DefaultConfig())
	if got := d.Detect(frame(0.5)); got != Speech {
		t.Errorf("Detect(loud) = %v, want speech", got)
	}
	if !d.IsSpeaking() {
		t.Error("IsSpeaking() should be true")
	}
	if d.SpeechFrameCount() != 1 {
		t.Errorf("SpeechFrameCount() = %d, want 1", d.SpeechFrameCount())
	}
}

func TestDetector_Transitions(t *testing.T) {
	d := New(Config{ThresholdDB: -50, SilenceTimeoutFrames: 2, MinSpeechFrames: 1, SmoothingFactor: 0})

	if d.State() != Silence {
		t.Fatalf("initial state = %v, want silence", d.State())
	}

	steps := []struct {
		in   []float32
		want State
	}{
		{frame(0.5), Speech},
		{frame(0.0001), Speech},
		{frame(0.0001), Ending},
		{frame(0.0001), Silence},
	}
	for i, s := range steps {
		if got := d.Detect(s.in); got != s.want {
			t.Fatalf("step %d: Detect() = %v, want %v", i, got, s.want)
		}
	}
}

func TestDetector_ShortSpeechIsIgnored(t *testing.T) {
	d := New(Config{ThresholdDB: -50, SilenceTimeoutFrames: 2, MinSpeechFrames: 3, SmoothingFactor: 0})

	d.Detect(frame(0.5))
	d.Detect(frame(0.5))
	d.Detect(frame(0.0001))
	if got := d.Detect(frame(0.0001)); got != Silence {
		t.Errorf("short segment ended in %v, want silence", got)
	}
	if d.SpeechFrameCount() != 0 {
		t.Errorf("SpeechFrameCount() = %d, want 0", d.SpeechFrameCount())
	}
}

func TestDetector_SpeechResetsSilenceRun(t *testing.T) {
	d := New(Config{ThresholdDB: -50, SilenceTimeoutFrames: 2, MinSpeechFrames: 1, SmoothingFactor: 0})

	d.Detect(frame(0.5))
	d.Detect(frame(0.0001))
	d.Detect(frame(0.5))
	if got := d.Detect(frame(0.0001)); got != Speech {
		t.Errorf("Detect() = %v, want speech after interrupted silence", got)
	}
	if d.SpeechFrameCount() != 2 {
		t.Errorf("SpeechFrameCount() = %d, want 2", d.SpeechFrameCount())
	}
}

func TestDetector_Reset(t *testing.T) {
	d := New(DefaultConfig())
	d.Detect(frame(0.5))
	if !d.IsSpeaking() {
		t.Fatal("expected speech before reset")
	}

	d.Reset()
	if d.State() != Silence || d.IsSpeaking() {
		t.Error("Reset() should return to silence")
	}
	if !math.IsInf(d.EnergyDB(), -1) {
		t.Errorf("EnergyDB() after reset = %v, want -Inf", d.EnergyDB())
	}
}

func TestEnergy(t *testing.T) {
	if got := Energy(frame(0)); got != 0 {
		t.Errorf("Energy(zeros) = %v, want 0", got)
	}
	if got := Energy(nil); got != 0 {
		t.Errorf("Energy(nil) = %v, want 0", got)
	}
	if got := Energy(frame(0.5)); math.Abs(got-0.25) > 1e-4 {
		t.Errorf("Energy(0.5) = %v, want 0.25", got)
	}
}

func TestToDB(t *testing.T) {
	if got := ToDB(0); !math.IsInf(got, -1) {
		t.Errorf("ToDB(0) = %v, want -Inf", got)
	}
	if got := ToDB(-1); !math.IsInf(got, -1) {
		t.Errorf("ToDB(-1) = %v, want -Inf", got)
	}
	if got := ToDB(1); got != 0 {
		t.Errorf("ToDB(1) = %v, want 0", got)
	}
	if got := ToDB(0.01); math.Abs(got+40) > 1e-9 {
		t.Errorf("ToDB(0.01) = %v, want -40", got)
	}
}

func TestEnergyDBIsSmoothed(t *testing.T) {
	d := New(DefaultConfig())
	d.Detect(frame(0.5))
	want := ToDB(0.3 * 0.25)
	if got := d.EnergyDB(); math.Abs(got-want) > 1e-6 {
		t.Errorf("EnergyDB() = %v, want %v", got, want)
	}
}
