package live

import (
	"strconv"
	"sync"
	"time"

	"github.com/suPer8Hu/haru-bank/internal/ai"
)

type Timer interface {
	Stop() bool
}

// Clock is swapped out in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Player schedules model audio back to back on a Speaker and tracks which
// buffers are still playing.
type Player struct {
	speaker    Speaker
	clock      Clock
	epoch      time.Time
	onSpeaking func(bool)

	mu     sync.Mutex
	next   time.Duration
	seq    uint64
	active map[string]Timer
}

func NewPlayer(speaker Speaker, clock Clock, onSpeaking func(bool)) *Player {
	if clock == nil {
		clock = systemClock{}
	}
	if onSpeaking == nil {
		onSpeaking = func(bool) {}
	}
	return &Player{
		speaker:    speaker,
		clock:      clock,
		epoch:      clock.Now(),
		onSpeaking: onSpeaking,
		active:     make(map[string]Timer),
	}
}

// Schedule queues chunk to start at max(end of the previous buffer, now).
func (p *Player) Schedule(chunk ai.AudioChunk) (Playback, error) {
	dur := PCMDuration(len(chunk.Data), SampleRate(chunk.MIMEType, ai.OutputAudioRate))

	p.mu.Lock()
	now := p.clock.Now().Sub(p.epoch)
	start := max(p.next, now)
	p.next = start + dur
	p.seq++
	id := "a" + strconv.FormatUint(p.seq, 10)
	wasIdle := len(p.active) == 0
	p.active[id] = p.clock.AfterFunc(start+dur-now, func() { p.finished(id) })
	p.mu.Unlock()

	if wasIdle {
		p.onSpeaking(true)
	}

	pb := Playback{ID: id, Start: start, PCM: chunk.Data, MIMEType: chunk.MIMEType}
	return pb, p.speaker.Play(pb)
}

func (p *Player) finished(id string) {
	p.mu.Lock()
	if _, ok := p.active[id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.active, id)
	idle := len(p.active) == 0
	p.mu.Unlock()

	if idle {
		p.onSpeaking(false)
	}
}

// Interrupt stops every scheduled buffer and resets the playback clock.
func (p *Player) Interrupt() error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.active))
	for id, t := range p.active {
		t.Stop()
		ids = append(ids, id)
	}
	p.active = make(map[string]Timer)
	p.next = 0
	p.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	p.onSpeaking(false)
	return p.speaker.Stop(ids)
}

func (p *Player) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) > 0
}

func (p *Player) Close() error {
	_ = p.Interrupt()
	return p.speaker.Close()
}
