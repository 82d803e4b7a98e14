package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/suPer8Hu/haru-bank/internal/ai"
	"github.com/suPer8Hu/haru-bank/internal/bank"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.done && !t.at.After(c.now) {
			t.done = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

type fakeSpeaker struct {
	mu     sync.Mutex
	plays  []Playback
	stops  [][]string
	closed bool
}

func (s *fakeSpeaker) Play(p Playback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays = append(s.plays, p)
	return nil
}

func (s *fakeSpeaker) Stop(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, ids)
	return nil
}

func (s *fakeSpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSpeaker) Stops() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.stops...)
}

func (s *fakeSpeaker) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMic struct {
	frames chan []byte

	mu     sync.Mutex
	closed bool
}

func (m *fakeMic) Frames() <-chan []byte { return m.frames }

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMic) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeDevice struct {
	micErr     error
	speakerErr error
	mic        *fakeMic
	speaker    *fakeSpeaker
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		mic:     &fakeMic{frames: make(chan []byte, 8)},
		speaker: &fakeSpeaker{},
	}
}

func (d *fakeDevice) OpenMicrophone(context.Context) (Microphone, error) {
	if d.micErr != nil {
		return nil, d.micErr
	}
	return d.mic, nil
}

func (d *fakeDevice) OpenSpeaker() (Speaker, error) {
	if d.speakerErr != nil {
		return nil, d.speakerErr
	}
	return d.speaker, nil
}

type recv struct {
	ev  *ai.LiveEvent
	err error
}

type fakeConn struct {
	in   chan recv
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	texts     []string
	audio     [][]byte
	mimes     []string
	responses []ai.ToolResponse
	sendErr   error
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan recv, 16), done: make(chan struct{})}
}

func (c *fakeConn) SendAudio(pcm []byte, mimeType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, pcm)
	c.mimes = append(c.mimes, mimeType)
	return nil
}

func (c *fakeConn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeConn) SendToolResponses(rs []ai.ToolResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, rs...)
	return nil
}

func (c *fakeConn) Receive() (*ai.LiveEvent, error) {
	select {
	case r := <-c.in:
		return r.ev, r.err
	case <-c.done:
		return nil, errors.New("fake conn closed")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func (c *fakeConn) Responses() []ai.ToolResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ai.ToolResponse(nil), c.responses...)
}

func (c *fakeConn) Audio() ([][]byte, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.audio...), append([]string(nil), c.mimes...)
}

type transcriptEvent struct {
	Role  bank.Role
	Text  string
	Final bool
}

type transcriptLog struct {
	mu     sync.Mutex
	events []transcriptEvent
}

func (l *transcriptLog) record(role bank.Role, text string, final bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, transcriptEvent{role, text, final})
}

func (l *transcriptLog) All() []transcriptEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]transcriptEvent(nil), l.events...)
}
