// Package vad classifies audio frames as speech or silence from their
// short-time energy.
package vad

import "math"

type State int

const (
	Silence State = iota
	Speech
	// Ending is reported for exactly one frame when a long enough speech
	// segment is followed by SilenceTimeoutFrames of silence. Callers that
	// act on end of speech must call Detect on every frame.
	Ending
)

func (s State) String() string {
	switch s {
	case Silence:
		return "silence"
	case Speech:
		return "speech"
	case Ending:
		return "ending"
	default:
		return "unknown"
	}
}

type Config struct {
	ThresholdDB          float64 // frames above this level count as speech
	SmoothingFactor      float64 // weight of the newest frame, 0..1
	SilenceTimeoutFrames int     // silent frames that end a speech segment
	MinSpeechFrames      int     // shorter segments end without an Ending pulse
}

// DefaultConfig suits a quiet room at 20 ms frames. Use around -40 dB in
// noisy environments.
func DefaultConfig() Config {
	return Config{
		ThresholdDB:          -50,
		SmoothingFactor:      0.3,
		SilenceTimeoutFrames: 15,
		MinSpeechFrames:      3,
	}
}

// Detector is not safe for concurrent use.
type Detector struct {
	config        Config
	smoothed      float64
	silenceFrames int
	speechFrames  int
	state         State
}

func New(config Config) *Detector {
	return &Detector{config: config}
}

// Detect updates the state machine with one frame and returns the new state.
func (d *Detector) Detect(frame []float32) State {
	energy := Energy(frame)
	d.smoothed = d.config.SmoothingFactor*energy + (1-d.config.SmoothingFactor)*d.smoothed

	level := d.smoothed
	if d.config.SmoothingFactor <= 0 {
		level = energy
	}
	isSpeech := ToDB(level) > d.config.ThresholdDB

	switch d.state {
	case Silence:
		if isSpeech {
			d.speechFrames = 1
			d.silenceFrames = 0
			d.state = Speech
		}
	case Speech:
		if isSpeech {
			d.speechFrames++
			d.silenceFrames = 0
			break
		}
		d.silenceFrames++
		if d.silenceFrames >= d.config.SilenceTimeoutFrames {
			if d.speechFrames >= d.config.MinSpeechFrames {
				d.state = Ending
			} else {
				d.state = Silence
			}
			d.speechFrames = 0
		}
	case Ending:
		d.state = Silence
		d.silenceFrames = 0
	}

	return d.state
}

func (d *Detector) Reset() {
	d.smoothed = 0
	d.silenceFrames = 0
	d.speechFrames = 0
	d.state = Silence
}

func (d *Detector) State() State { return d.state }

// EnergyDB is the smoothed energy in dB.
func (d *Detector) EnergyDB() float64 { return ToDB(d.smoothed) }

func (d *Detector) IsSpeaking() bool { return d.state == Speech }

// SpeechFrameCount is the length of the current speech run.
func (d *Detector) SpeechFrameCount() int { return d.speechFrames }

// Energy is the mean of squared samples; 0 for an empty frame.
func Energy(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return sum / float64(len(frame))
}

// ToDB converts a linear energy to 20*log10(e), or -Inf for e <= 0.
func ToDB(e float64) float64 {
	if e <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(e)
}
