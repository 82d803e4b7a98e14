package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/suPer8Hu/haru-bank/internal/bank"
	"go.uber.org/zap"
)

var ErrLinkClosed = errors.New("live: device link closed")

// LinkHandler receives the browser's control frames. Calls are serialized
// on a worker goroutine so slow handlers never stall audio.
type LinkHandler interface {
	OnConnect(ctx context.Context) error
	OnDisconnect()
	OnText(ctx context.Context, text string) error
}

type LinkConfig struct {
	PingInterval  time.Duration
	WriteTimeout  time.Duration
	ReadTimeout   time.Duration
	MaxFrameBytes int64
	Logger        *zap.Logger
}

// Link is a browser tab connected over a WebSocket. It is the Device the
// Manager acquires microphone and speaker from.
type Link struct {
	conn    *websocket.Conn
	cfg     LinkConfig
	handler LinkHandler
	log     *zap.Logger

	out      chan []byte
	cmds     chan func(ctx context.Context)
	done     chan struct{}
	doneOnce sync.Once

	mu         sync.Mutex
	closed     bool
	micGranted bool
	mic        *linkMic
}

func NewLink(conn *websocket.Conn, handler LinkHandler, cfg LinkConfig) *Link {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Link{
		conn:    conn,
		cfg:     cfg,
		handler: handler,
		log:     cfg.Logger,
		out:     make(chan []byte, 64),
		cmds:    make(chan func(context.Context), 16),
		done:    make(chan struct{}),
	}
}

// Run serves the link until the browser goes away or ctx ends.
func (l *Link) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := l.writeLoop(ctx); err != nil {
			l.log.Debug("device link writer stopped", zap.Error(err))
		}
		_ = l.conn.Close()
	}()
	go func() {
		defer wg.Done()
		l.commandLoop(ctx)
	}()

	err := l.readLoop(ctx)
	l.shutdown()
	cancel()
	wg.Wait()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func (l *Link) shutdown() {
	l.mu.Lock()
	l.closed = true
	if l.mic != nil {
		l.mic.closeLocked()
	}
	l.mu.Unlock()
	l.doneOnce.Do(func() { close(l.done) })
}

func (l *Link) readLoop(ctx context.Context) error {
	if l.cfg.MaxFrameBytes > 0 {
		l.conn.SetReadLimit(l.cfg.MaxFrameBytes)
	}
	_ = l.conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
	})

	for {
		typ, data, err := l.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = l.conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		if typ != websocket.TextMessage {
			l.sendError("bad_request", "only text frames are accepted")
			continue
		}

		frame, err := DecodeClientFrame(data)
		if err != nil {
			l.sendError("bad_request", err.Error())
			continue
		}

		switch f := frame.(type) {
		case ClientAudio:
			pcm, err := f.DecodePCM()
			if err != nil {
				l.sendError("bad_request", err.Error())
				continue
			}
			l.pushFrame(pcm)
		case ClientMic:
			l.setMicGranted(f.Granted)
		case ClientConnect:
			l.enqueue(ctx, func(ctx context.Context) {
				if err := l.handler.OnConnect(ctx); err != nil {
					l.sendError("connect_failed", err.Error())
				}
			})
		case ClientDisconnect:
			l.enqueue(ctx, func(context.Context) { l.handler.OnDisconnect() })
		case ClientText:
			text := f.Text
			l.enqueue(ctx, func(ctx context.Context) {
				if err := l.handler.OnText(ctx, text); err != nil {
					l.sendError("send_failed", err.Error())
				}
			})
		}
	}
}

func (l *Link) enqueue(ctx context.Context, fn func(context.Context)) {
	select {
	case l.cmds <- fn:
	case <-ctx.Done():
	}
}

func (l *Link) commandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.cmds:
			fn(ctx)
		}
	}
}

func (l *Link) writeLoop(ctx context.Context) error {
	ping := time.NewTicker(l.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(l.cfg.WriteTimeout)
			_ = l.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return nil
		case <-ping.C:
			if err := l.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(l.cfg.WriteTimeout)); err != nil {
				return err
			}
		case b := <-l.out:
			if err := l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout)); err != nil {
				return err
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		}
	}
}

func (l *Link) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case l.out <- b:
		return nil
	case <-l.done:
		return ErrLinkClosed
	}
}

func (l *Link) sendError(code, msg string) {
	_ = l.send(ServerError{Type: "error", Code: code, Message: msg})
}

func (l *Link) NotifyStatus(info StatusInfo) {
	_ = l.send(ServerStatus{Type: "status", StatusInfo: info})
}

func (l *Link) NotifyTranscript(role bank.Role, text string, final bool) {
	_ = l.send(ServerTranscript{Type: "transcript", Role: string(role), Text: text, IsFinal: final})
}

func (l *Link) setMicGranted(granted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.micGranted = granted
	if !granted && l.mic != nil {
		l.mic.closeLocked()
	}
}

func (l *Link) pushFrame(pcm []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mic == nil {
		return
	}
	select {
	case l.mic.frames <- pcm:
	default:
		l.log.Debug("microphone frame dropped, capture is behind")
	}
}

func (l *Link) OpenMicrophone(ctx context.Context) (Microphone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLinkClosed
	}
	if !l.micGranted {
		return nil, fmt.Errorf("%w: permission not granted", ErrMicrophoneUnavailable)
	}
	if l.mic != nil {
		l.mic.closeLocked()
	}
	l.mic = &linkMic{link: l, frames: make(chan []byte, 32)}
	return l.mic, nil
}

func (l *Link) OpenSpeaker() (Speaker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLinkClosed
	}
	return &linkSpeaker{link: l}, nil
}

type linkMic struct {
	link   *Link
	frames chan []byte
	closed bool
}

func (m *linkMic) Frames() <-chan []byte { return m.frames }

func (m *linkMic) Close() error {
	m.link.mu.Lock()
	defer m.link.mu.Unlock()
	m.closeLocked()
	return nil
}

// closeLocked requires link.mu.
func (m *linkMic) closeLocked() {
	if m.closed {
		return
	}
	m.closed = true
	close(m.frames)
	if m.link.mic == m {
		m.link.mic = nil
	}
}

type linkSpeaker struct {
	link *Link

	mu     sync.Mutex
	closed bool
}

func (s *linkSpeaker) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *linkSpeaker) Play(p Playback) error {
	if s.isClosed() {
		return ErrLinkClosed
	}
	return s.link.send(ServerAudioPlay{
		Type:     "audio.play",
		ID:       p.ID,
		StartMS:  p.Start.Milliseconds(),
		DataB64:  base64.StdEncoding.EncodeToString(p.PCM),
		MIMEType: p.MIMEType,
	})
}

func (s *linkSpeaker) Stop(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.link.send(ServerAudioStop{Type: "audio.stop", IDs: ids})
}

func (s *linkSpeaker) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
