package ai

import "context"

// LiveProvider is an optional interface. Providers that can hold a realtime
// audio session implement it.
type LiveProvider interface {
	ConnectLive(ctx context.Context, cfg LiveConfig) (LiveConn, error)
}

type LiveConfig struct {
	SystemInstruction string
	Tools             []ToolSpec
}

const (
	InputAudioMIME  = "audio/pcm;rate=16000"
	OutputAudioRate = 24000
)

// LiveConn is one open realtime channel. Send methods may be called from any
// goroutine; Receive must only be called from one.
type LiveConn interface {
	SendAudio(pcm []byte, mimeType string) error
	SendText(text string) error
	SendToolResponses(responses []ToolResponse) error
	// Receive blocks until the next server event. It returns an error once
	// the channel is closed.
	Receive() (*LiveEvent, error)
	Close() error
}

type AudioChunk struct {
	Data     []byte
	MIMEType string
}

// LiveEvent is one normalized server message. Fields are applied in the
// order they are declared.
type LiveEvent struct {
	SetupComplete    bool
	Audio            []AudioChunk
	OutputTranscript string
	InputTranscript  string
	TurnComplete     bool
	ToolCalls        []ToolCall
	Interrupted      bool
}
