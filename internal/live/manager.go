// Package live owns the realtime voice session: device acquisition, the
// remote live channel, playback scheduling and transcript accumulation.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/suPer8Hu/haru-bank/internal/ai"
	"github.com/suPer8Hu/haru-bank/internal/bank"
	"go.uber.org/zap"
)

var (
	ErrNotConnected          = errors.New("live: not connected")
	ErrMicrophoneUnavailable = errors.New("live: microphone unavailable")
	ErrSuperseded            = errors.New("live: connect superseded")
)

type Config struct {
	// Dial opens the remote channel.
	Dial func(ctx context.Context, cfg ai.LiveConfig) (ai.LiveConn, error)
	// Setup is evaluated on every connect so the instruction reflects the
	// current persona settings and summary.
	Setup func() ai.LiveConfig
	// HandleTool runs one tool call synchronously.
	HandleTool func(name string, args map[string]any) map[string]any

	OnTranscript func(role bank.Role, text string, final bool)
	OnStatus     func(StatusInfo)

	Clock  Clock
	Logger *zap.Logger
}

// Manager drives one realtime session at a time through
// Idle -> Connecting -> Connected -> Idle.
type Manager struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	status  Status
	lastErr error
	device  Device
	cur     *session
	gen     uint64
}

func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Setup == nil {
		cfg.Setup = func() ai.LiveConfig { return ai.LiveConfig{} }
	}
	if cfg.HandleTool == nil {
		cfg.HandleTool = func(name string, _ map[string]any) map[string]any {
			return map[string]any{"error": "unknown tool: " + name}
		}
	}
	return &Manager{cfg: cfg, log: cfg.Logger, status: StatusIdle}
}

// session holds everything acquired for one connection.
type session struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc

	mic    Microphone
	player *Player
	conn   ai.LiveConn

	// touched only by the receive goroutine
	userText  strings.Builder
	modelText strings.Builder

	releaseOnce sync.Once
}

func (s *session) release() {
	s.releaseOnce.Do(func() {
		s.cancel()
		if s.mic != nil {
			_ = s.mic.Close()
		}
		if s.player != nil {
			_ = s.player.Close()
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (m *Manager) AttachDevice(d Device) {
	m.mu.Lock()
	m.device = d
	m.mu.Unlock()
}

// DetachDevice forgets d and tears down any session that was using it.
func (m *Manager) DetachDevice(d Device) {
	m.mu.Lock()
	if m.device != d {
		m.mu.Unlock()
		return
	}
	m.device = nil
	m.mu.Unlock()
	m.Disconnect()
}

func (m *Manager) Status() StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() StatusInfo {
	info := StatusInfo{Status: m.status}
	if m.cur != nil && m.cur.player != nil {
		info.Speaking = m.cur.player.IsSpeaking()
	}
	if m.lastErr != nil {
		info.Error = m.lastErr.Error()
	}
	return info
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusConnected
}

func (m *Manager) IsSpeaking() bool {
	return m.Status().Speaking
}

// Connect tears down any previous session and opens a new one. It returns
// once the channel is open; the state turns Connected when the remote side
// acknowledges setup.
func (m *Manager) Connect(ctx context.Context) error {
	m.Disconnect()

	m.mu.Lock()
	m.gen++
	gen := m.gen
	dev := m.device
	m.status = StatusConnecting
	m.lastErr = nil
	m.mu.Unlock()
	m.emitStatus()

	s := &session{gen: gen}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	fail := func(err error) error {
		s.release()
		m.abort(gen, err)
		return err
	}

	if dev == nil {
		return fail(fmt.Errorf("%w: no device attached", ErrMicrophoneUnavailable))
	}

	mic, err := dev.OpenMicrophone(ctx)
	if err != nil {
		if !errors.Is(err, ErrMicrophoneUnavailable) {
			err = fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
		}
		return fail(err)
	}
	s.mic = mic

	spk, err := dev.OpenSpeaker()
	if err != nil {
		return fail(fmt.Errorf("live: open speaker: %w", err))
	}
	s.player = NewPlayer(spk, m.cfg.Clock, func(bool) { m.emitStatusFor(s) })

	if m.cfg.Dial == nil {
		return fail(errors.New("live: no realtime provider"))
	}
	conn, err := m.cfg.Dial(ctx, m.cfg.Setup())
	if err != nil {
		return fail(fmt.Errorf("live: open channel: %w", err))
	}
	s.conn = conn

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		s.release()
		return ErrSuperseded
	}
	m.cur = s
	m.mu.Unlock()

	m.log.Info("live channel opened", zap.Uint64("gen", gen))
	go m.receive(s)
	return nil
}

// Disconnect releases every resource of the current session. Safe to call
// in any state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	s := m.cur
	wasIdle := m.status == StatusIdle && s == nil
	m.cur = nil
	m.gen++
	m.status = StatusIdle
	if !wasIdle {
		m.lastErr = nil
	}
	m.mu.Unlock()

	if s != nil {
		s.release()
		m.log.Info("live channel closed", zap.Uint64("gen", s.gen))
	}
	if !wasIdle {
		m.emitStatus()
	}
}

// SendText forwards a finished user turn on the open channel.
func (m *Manager) SendText(text string) error {
	m.mu.Lock()
	s := m.cur
	ok := s != nil && m.status == StatusConnected
	m.mu.Unlock()

	if !ok {
		m.log.Warn("live text dropped, channel not open")
		return ErrNotConnected
	}
	if err := s.conn.SendText(text); err != nil {
		m.drop(s, err)
		return fmt.Errorf("live: send text: %w", err)
	}
	return nil
}

// abort ends a connect attempt that never produced a session.
func (m *Manager) abort(gen uint64, err error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.status = StatusIdle
	m.lastErr = err
	m.mu.Unlock()

	m.log.Warn("live connect failed", zap.Error(err))
	m.emitStatus()
}

// drop tears s down after a transport error, if it is still current.
func (m *Manager) drop(s *session, err error) {
	m.mu.Lock()
	if m.cur != s {
		m.mu.Unlock()
		return
	}
	m.cur = nil
	m.gen++
	m.status = StatusIdle
	m.lastErr = err
	m.mu.Unlock()

	s.release()
	m.log.Warn("live channel failed", zap.Uint64("gen", s.gen), zap.Error(err))
	m.emitStatus()
}

func (m *Manager) isCurrent(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur == s
}

func (m *Manager) receive(s *session) {
	for {
		ev, err := s.conn.Receive()
		if err != nil {
			m.drop(s, err)
			return
		}
		if !m.isCurrent(s) {
			return
		}
		if err := m.handle(s, ev); err != nil {
			m.drop(s, err)
			return
		}
	}
}

// handle applies one server event. Parts are processed in a fixed order:
// audio, model transcript, user transcript, turn end, tool calls, barge-in.
func (m *Manager) handle(s *session, ev *ai.LiveEvent) error {
	m.markConnected(s)

	for _, chunk := range ev.Audio {
		if _, err := s.player.Schedule(chunk); err != nil {
			m.log.Warn("schedule playback", zap.Error(err))
		}
	}

	if ev.OutputTranscript != "" {
		s.modelText.WriteString(ev.OutputTranscript)
		m.transcript(s, bank.RoleModel, s.modelText.String(), false)
	}
	if ev.InputTranscript != "" {
		s.userText.WriteString(ev.InputTranscript)
		m.transcript(s, bank.RoleUser, s.userText.String(), false)
	}

	if ev.TurnComplete {
		m.flush(s, bank.RoleModel, &s.modelText)
		m.flush(s, bank.RoleUser, &s.userText)
	}

	for _, call := range ev.ToolCalls {
		result := m.cfg.HandleTool(call.Name, call.Args)
		payload, err := json.Marshal(result)
		if err != nil {
			payload = []byte(`{"error":"unencodable tool result"}`)
		}
		resp := ai.ToolResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"result": string(payload)},
		}
		if err := s.conn.SendToolResponses([]ai.ToolResponse{resp}); err != nil {
			return fmt.Errorf("live: send tool response: %w", err)
		}
	}

	if ev.Interrupted {
		if err := s.player.Interrupt(); err != nil {
			m.log.Warn("stop playback", zap.Error(err))
		}
		m.flush(s, bank.RoleModel, &s.modelText)
	}
	return nil
}

func (m *Manager) flush(s *session, role bank.Role, b *strings.Builder) {
	if b.Len() == 0 {
		return
	}
	m.transcript(s, role, b.String(), true)
	b.Reset()
}

func (m *Manager) markConnected(s *session) {
	m.mu.Lock()
	if m.cur != s || m.status != StatusConnecting {
		m.mu.Unlock()
		return
	}
	m.status = StatusConnected
	m.mu.Unlock()

	s.userText.Reset()
	s.modelText.Reset()
	go m.capture(s)
	m.log.Info("live session connected", zap.Uint64("gen", s.gen))
	m.emitStatus()
}

// capture streams microphone frames until the session ends.
func (m *Manager) capture(s *session) {
	frames := s.mic.Frames()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := s.conn.SendAudio(frame, ai.InputAudioMIME); err != nil {
				m.drop(s, fmt.Errorf("live: send audio: %w", err))
				return
			}
		}
	}
}

func (m *Manager) transcript(s *session, role bank.Role, text string, final bool) {
	m.mu.Lock()
	if m.cur != s {
		m.mu.Unlock()
		return
	}
	dev := m.device
	m.mu.Unlock()

	if m.cfg.OnTranscript != nil {
		m.cfg.OnTranscript(role, text, final)
	}
	if n, ok := dev.(Notifier); ok {
		n.NotifyTranscript(role, text, final)
	}
}

func (m *Manager) emitStatusFor(s *session) {
	if m.isCurrent(s) {
		m.emitStatus()
	}
}

func (m *Manager) emitStatus() {
	m.mu.Lock()
	info := m.statusLocked()
	dev := m.device
	m.mu.Unlock()

	if m.cfg.OnStatus != nil {
		m.cfg.OnStatus(info)
	}
	if n, ok := dev.(Notifier); ok {
		n.NotifyStatus(info)
	}
}
