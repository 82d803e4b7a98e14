package live

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Frames sent by the browser over the device link.
type (
	ClientAudio struct {
		Type     string `json:"type"`
		DataB64  string `json:"data_b64"`
		MIMEType string `json:"mime,omitempty"`
	}
	ClientText struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	ClientConnect struct {
		Type string `json:"type"`
	}
	ClientDisconnect struct {
		Type string `json:"type"`
	}
	// ClientMic reports the browser's microphone permission.
	ClientMic struct {
		Type    string `json:"type"`
		Granted bool   `json:"granted"`
	}
)

// Frames sent to the browser.
type (
	ServerStatus struct {
		Type string `json:"type"`
		StatusInfo
	}
	ServerTranscript struct {
		Type    string `json:"type"`
		Role    string `json:"role"`
		Text    string `json:"text"`
		IsFinal bool   `json:"is_final"`
	}
	ServerAudioPlay struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		StartMS  int64  `json:"start_ms"`
		DataB64  string `json:"data_b64"`
		MIMEType string `json:"mime"`
	}
	ServerAudioStop struct {
		Type string   `json:"type"`
		IDs  []string `json:"ids"`
	}
	ServerError struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

var ErrBadFrame = errors.New("live: bad frame")

func badFrame(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadFrame, msg)
}

// DecodeClientFrame parses one JSON text frame by its type field.
func DecodeClientFrame(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("invalid json frame")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("missing type")
	}

	switch typ {
	case "audio":
		var msg ClientAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid audio frame")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badFrame("audio.data_b64 is required")
		}
		return msg, nil
	case "text":
		var msg ClientText
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid text frame")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badFrame("text.text is required")
		}
		return msg, nil
	case "connect":
		return ClientConnect{Type: typ}, nil
	case "disconnect":
		return ClientDisconnect{Type: typ}, nil
	case "mic":
		var msg ClientMic
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid mic frame")
		}
		return msg, nil
	default:
		return nil, badFrame("unsupported type " + typ)
	}
}

// DecodePCM returns the raw bytes of an audio frame.
func (a ClientAudio) DecodePCM() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(a.DataB64)
	if err != nil {
		return nil, badFrame("audio.data_b64 is not base64")
	}
	if len(b)%bytesPerSample != 0 {
		return nil, badFrame("audio frame has a partial sample")
	}
	return b, nil
}
