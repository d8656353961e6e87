package wsclient

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
)

type MessageType int

const (
	TextMessage MessageType = iota
	BinaryMessage
	PingMessage
	PongMessage
	CloseMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	case PingMessage:
		return "ping"
	case PongMessage:
		return "pong"
	case CloseMessage:
		return "close"
	default:
		return "unknown"
	}
}

// Message is one inbound frame. Code is the close code for CloseMessage.
type Message struct {
	Type MessageType
	Data []byte
	Code int
}

type audioChunk struct {
	MessageType string `json:"message_type"`
	AudioBase64 string `json:"audio_base_64"`
	Commit      bool   `json:"commit,omitempty"`
	SampleRate  int    `json:"sample_rate,omitempty"`
}

type configureMessage struct {
	MessageType  string `json:"message_type"`
	ModelID      string `json:"model_id"`
	LanguageCode string `json:"language_code"`
	Encoding     string `json:"encoding"`
}

// EncodePCM16 clamps samples to [-1, 1] and converts them to little-endian
// signed 16-bit PCM.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s*32767)))
	}
	return out
}

// AudioMessage builds the input_audio_chunk payload for samples.
func AudioMessage(samples []float32, sampleRate int) ([]byte, error) {
	return json.Marshal(audioChunk{
		MessageType: "input_audio_chunk",
		AudioBase64: base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
		SampleRate:  sampleRate,
	})
}

// CommitMessage asks the service to finalize the pending utterance.
func CommitMessage(sampleRate int) ([]byte, error) {
	return json.Marshal(audioChunk{
		MessageType: "input_audio_chunk",
		Commit:      true,
		SampleRate:  sampleRate,
	})
}

func ConfigureMessage(modelID, languageCode string) ([]byte, error) {
	return json.Marshal(configureMessage{
		MessageType:  "configure",
		ModelID:      modelID,
		LanguageCode: languageCode,
		Encoding:     "pcm_16000",
	})
}
