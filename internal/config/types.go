package config

import "time"

type Config struct {
	Recording     RecordingConfig     `toml:"recording"`
	VAD           VADConfig           `toml:"vad"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Connection    ConnectionConfig    `toml:"connection"`
	Injection     InjectionConfig     `toml:"injection"`
	Notifications NotificationsConfig `toml:"notifications"`
	Metrics       MetricsConfig       `toml:"metrics"`
}

type RecordingConfig struct {
	Backend        string        `toml:"backend"` // "portaudio" or "pipewire"
	Device         string        `toml:"device"`  // device ID or name, empty for the system default
	SampleRate     int           `toml:"sample_rate"`
	Channels       int           `toml:"channels"`
	BufferDuration time.Duration `toml:"buffer_duration"` // capture callback period
	BufferSeconds  float64       `toml:"buffer_seconds"`  // ring buffer length
	DumpPath       string        `toml:"dump_path"`       // optional WAV copy of each recording
	Timeout        time.Duration `toml:"timeout"`         // maximum recording length
}

type VADConfig struct {
	ThresholdDB          float64 `toml:"threshold_db"`
	SmoothingFactor      float64 `toml:"smoothing_factor"`
	SilenceTimeoutFrames int     `toml:"silence_timeout_frames"`
	MinSpeechFrames      int     `toml:"min_speech_frames"`
	CommitOnSilence      bool    `toml:"commit_on_silence"` // commit the utterance when a speech segment ends
}

type TranscriptionConfig struct {
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	APIKey         string `toml:"api_key"`
	CommitStrategy string `toml:"commit_strategy"` // "vad" or "manual"
}

type ConnectionConfig struct {
	URL                  string        `toml:"url"`
	ConnectTimeout       time.Duration `toml:"connect_timeout"`
	ReceiveTimeout       time.Duration `toml:"receive_timeout"`
	ReconnectDelay       time.Duration `toml:"reconnect_delay"`
	MaxReconnectAttempts int           `toml:"max_reconnect_attempts"`
	KeepAliveInterval    time.Duration `toml:"keep_alive_interval"`
	FinalizeTimeout      time.Duration `toml:"finalize_timeout"` // wait for the last committed transcript on stop
}

type InjectionConfig struct {
	Enabled          bool          `toml:"enabled"`
	Backends         []string      `toml:"backends"`
	YdotoolTimeout   time.Duration `toml:"ydotool_timeout"`
	WtypeTimeout     time.Duration `toml:"wtype_timeout"`
	ClipboardTimeout time.Duration `toml:"clipboard_timeout"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}
