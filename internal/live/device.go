package live

import (
	"context"
	"time"

	"github.com/suPer8Hu/haru-bank/internal/bank"
)

// Device is the user's end of the realtime channel: a microphone source and
// a speaker sink. Both are acquired on connect and released on every exit.
type Device interface {
	OpenMicrophone(ctx context.Context) (Microphone, error)
	OpenSpeaker() (Speaker, error)
}

// Microphone delivers 16 kHz mono PCM frames until closed.
type Microphone interface {
	Frames() <-chan []byte
	Close() error
}

// Playback is one buffer scheduled at Start on the speaker's clock, which
// begins when the speaker is opened.
type Playback struct {
	ID       string
	Start    time.Duration
	PCM      []byte
	MIMEType string
}

type Speaker interface {
	Play(p Playback) error
	// Stop cancels the given buffers whether playing or pending.
	Stop(ids []string) error
	Close() error
}

// Notifier is optionally implemented by a Device that mirrors session
// status and transcripts to the user.
type Notifier interface {
	NotifyStatus(info StatusInfo)
	NotifyTranscript(role bank.Role, text string, final bool)
}
