package config

import "time"

const APIKeyEnv = "ELEVENLABS_API_KEY"

func DefaultConfig() *Config {
	return &Config{
		Recording: RecordingConfig{
			Backend:        "portaudio",
			SampleRate:     48000,
			Channels:       1,
			BufferDuration: 20 * time.Millisecond,
			BufferSeconds:  2,
			Timeout:        5 * time.Minute,
		},
		VAD: VADConfig{
			ThresholdDB:          -50,
			SmoothingFactor:      0.3,
			SilenceTimeoutFrames: 15,
			MinSpeechFrames:      3,
		},
		Transcription: TranscriptionConfig{
			Model:          "scribe_v1",
			Language:       "en",
			CommitStrategy: "vad",
		},
		Connection: ConnectionConfig{
			URL:                  "wss://api.elevenlabs.io/v1/speech-to-text/realtime",
			ConnectTimeout:       30 * time.Second,
			ReceiveTimeout:       100 * time.Millisecond,
			ReconnectDelay:       time.Second,
			MaxReconnectAttempts: 5,
			KeepAliveInterval:    30 * time.Second,
			FinalizeTimeout:      5 * time.Second,
		},
		Injection: InjectionConfig{
			Enabled:          true,
			Backends:         []string{"ydotool", "wtype", "clipboard"},
			YdotoolTimeout:   5 * time.Second,
			WtypeTimeout:     5 * time.Second,
			ClipboardTimeout: 3 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
	}
}

const defaultConfigTemplate = `# audioflow configuration
# Changes are applied to the next recording without restarting the daemon.

[recording]
  backend = "portaudio"         # "portaudio" or "pipewire" (pw-record)
  device = ""                   # device ID or name from 'audioflow devices', empty = default
  sample_rate = 48000           # capture rate in Hz, resampled to 16 kHz for streaming
  channels = 1                  # capture channels, downmixed to mono
  buffer_duration = "20ms"      # capture callback period
  buffer_seconds = 2.0          # ring buffer length
  dump_path = ""                # write each recording to this WAV file (debugging)
  timeout = "5m"                # maximum recording duration

[vad]
  threshold_db = -50.0          # speech threshold, around -40 in noisy rooms
  smoothing_factor = 0.3        # weight of the newest frame (0 = no smoothing)
  silence_timeout_frames = 15   # silent frames before a segment ends
  min_speech_frames = 3         # shorter bursts are ignored
  commit_on_silence = false     # commit each utterance when speech ends

[transcription]
  model = "scribe_v1"
  language = "en"               # language code sent to the service
  api_key = ""                  # or set ELEVENLABS_API_KEY
  commit_strategy = "vad"       # "vad" (service commits on pauses) or "manual"

[connection]
  url = "wss://api.elevenlabs.io/v1/speech-to-text/realtime"
  connect_timeout = "30s"
  receive_timeout = "100ms"
  reconnect_delay = "1s"        # first backoff step, doubled per attempt
  max_reconnect_attempts = 5
  keep_alive_interval = "30s"
  finalize_timeout = "5s"       # wait for the last transcript on stop

[injection]
  enabled = true
  backends = ["ydotool", "wtype", "clipboard"]   # tried in order
  ydotool_timeout = "5s"
  wtype_timeout = "5s"
  clipboard_timeout = "3s"

[notifications]
  enabled = true
  type = "desktop"              # "desktop", "log", "none"

[metrics]
  enabled = false
  address = "127.0.0.1:9464"    # Prometheus /metrics listener
`
