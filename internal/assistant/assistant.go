// Package assistant wires one banking session together: the state store,
// the ledger, tool dispatch, the realtime session, the text fallback and
// the history compactor.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/haru-bank/internal/ai"
	"github.com/suPer8Hu/haru-bank/internal/bank"
	"github.com/suPer8Hu/haru-bank/internal/chat"
	"github.com/suPer8Hu/haru-bank/internal/compactor"
	"github.com/suPer8Hu/haru-bank/internal/live"
	"github.com/suPer8Hu/haru-bank/internal/persona"
	"github.com/suPer8Hu/haru-bank/internal/store/rabbitmq"
	"github.com/suPer8Hu/haru-bank/internal/textchat"
	"github.com/suPer8Hu/haru-bank/internal/tools"
	"go.uber.org/zap"
)

const (
	MockProvider = "mock"
	RebootNotice = "Session has been rebooted."
)

var (
	ErrEmptyMessage    = errors.New("assistant: message is empty")
	ErrLiveUnsupported = errors.New("assistant: provider has no realtime channel")
	ErrClosed          = errors.New("assistant: session closed")
)

type ProviderSource interface {
	Get(ctx context.Context, name string) (ai.Provider, error)
}

// Archive persists what a session produced. *chat.Service implements it.
type Archive interface {
	OpenSession(ctx context.Context, provider, model string) (*chat.Session, error)
	CloseSession(ctx context.Context, sessionID string) error
	RecordTurn(ctx context.Context, sessionID string, t bank.Turn) error
	RecordSummary(ctx context.Context, sessionID, text, throughTurnID string) error
	RecordLedgerEvent(ctx context.Context, ev *chat.LedgerEvent) (bool, error)
}

type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, m rabbitmq.LedgerMessage) error
}

type Options struct {
	Providers ProviderSource
	Provider  string // registry name used unless mock mode is on
	Model     string

	HistoryThreshold int
	SummarizeCount   int
	SummarizeTimeout time.Duration
	ChatTimeout      time.Duration

	// optional
	Archive Archive
	Events  EventPublisher
	Clock   live.Clock
	Logger  *zap.Logger
}

type Assistant struct {
	id   string
	opts Options
	log  *zap.Logger
	now  func() time.Time

	store     *bank.Store
	ledger    *bank.Ledger
	tools     *tools.Dispatcher
	live      *live.Manager
	text      *textchat.Service
	compactor *compactor.Compactor
	advisor   advisor
	hub       *hub

	unsubscribe func()

	amu      sync.Mutex
	archived map[string]bool

	jobs chan func(context.Context)
	bg   sync.WaitGroup
	wg   sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

// New builds the assistant for session id, starting from the initial bank
// state.
func New(id string, opts Options) *Assistant {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	a := &Assistant{
		id:       id,
		opts:     opts,
		log:      opts.Logger.With(zap.String("session_id", id)),
		now:      time.Now,
		store:    bank.NewStore(bank.InitialState()),
		hub:      newHub(),
		archived: make(map[string]bool),
		jobs:     make(chan func(context.Context), 256),
	}
	a.ledger = bank.NewLedger(a.store)
	a.tools = tools.NewDispatcher(a.store, a.log)
	a.text = textchat.NewService(a.store, a.tools, a.provider, a.log)
	a.compactor = compactor.New(a.store, a.provider, a.text.Invalidate, compactor.Config{
		Threshold: opts.HistoryThreshold,
		Count:     opts.SummarizeCount,
		Timeout:   opts.SummarizeTimeout,
	}, a.log)
	a.live = live.NewManager(live.Config{
		Dial:         a.dialLive,
		Setup:        a.liveSetup,
		HandleTool:   a.handleTool,
		OnTranscript: a.onTranscript,
		OnStatus:     a.onLiveStatus,
		Clock:        opts.Clock,
		Logger:       a.log,
	})
	a.unsubscribe = a.store.Subscribe(a.onChange)

	a.wg.Add(1)
	go a.runJobs()
	return a
}

func (a *Assistant) ID() string { return a.id }

func (a *Assistant) Snapshot() bank.State { return a.store.Snapshot() }

// Dispatch applies UI actions to the session state.
func (a *Assistant) Dispatch(actions ...bank.Action) bank.State {
	return a.store.Dispatch(actions...)
}

// Tool runs a tool call on behalf of the UI, with the same validation the
// model gets.
func (a *Assistant) Tool(name string, args map[string]any) tools.Result {
	return a.tools.Dispatch(name, args)
}

func (a *Assistant) provider(ctx context.Context) (ai.Provider, error) {
	name := a.opts.Provider
	if a.store.Snapshot().Debug.MockMode {
		name = MockProvider
	}
	if a.opts.Providers == nil {
		return nil, errors.New("assistant: no provider source")
	}
	return a.opts.Providers.Get(ctx, name)
}

func (a *Assistant) dialLive(ctx context.Context, cfg ai.LiveConfig) (ai.LiveConn, error) {
	p, err := a.provider(ctx)
	if err != nil {
		return nil, err
	}
	lp, ok := p.(ai.LiveProvider)
	if !ok {
		return nil, ErrLiveUnsupported
	}
	return lp.ConnectLive(ctx, cfg)
}

func (a *Assistant) liveSetup() ai.LiveConfig {
	st := a.store.Snapshot()
	return ai.LiveConfig{
		SystemInstruction: persona.Instruction(st.Debug, st.Summary),
		Tools:             tools.Declarations(),
	}
}

func (a *Assistant) handleTool(name string, args map[string]any) map[string]any {
	return a.tools.Dispatch(name, args)
}

func (a *Assistant) onTranscript(role bank.Role, text string, final bool) {
	a.store.Dispatch(bank.UpsertChatMessage{
		Role:      role,
		Text:      text,
		IsFinal:   final,
		Timestamp: a.now(),
	})
}

func (a *Assistant) onLiveStatus(info live.StatusInfo) {
	a.hub.publish(Event{Kind: EventLive, Live: &info})
	switch info.Status {
	case live.StatusConnected:
		a.advise(a.store.Snapshot())
	case live.StatusIdle:
		// transcripts of the closed session must not absorb later turns
		if a.store.Snapshot().HasOpenTurns() {
			a.store.Dispatch(bank.FinalizeOpenTurns{})
		}
	}
}

// Send delivers a typed message or system trigger. The user turn is shown
// right away; the reply arrives over the realtime session when one is open,
// otherwise through the text fallback.
func (a *Assistant) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if a.isClosed() {
		return ErrClosed
	}

	prior := a.store.Snapshot().ChatHistory
	a.store.Dispatch(bank.AddChatMessage{Turn: bank.Turn{
		Role:      bank.RoleUser,
		Text:      text,
		Timestamp: a.now(),
		IsFinal:   true,
	}})

	if a.live.IsConnected() {
		err := a.live.SendText(text)
		if err == nil {
			return nil
		}
		a.log.Warn("realtime send failed, using text fallback", zap.Error(err))
	}

	if a.opts.ChatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.ChatTimeout)
		defer cancel()
	}
	return a.text.Send(ctx, text, prior)
}

func (a *Assistant) Connect(ctx context.Context) error {
	if a.isClosed() {
		return ErrClosed
	}
	return a.live.Connect(ctx)
}

func (a *Assistant) Disconnect() { a.live.Disconnect() }

// Restart drops both channels; the next message rebuilds them from the
// current summary and history.
func (a *Assistant) Restart() {
	a.live.Disconnect()
	a.text.Invalidate()
	a.store.Dispatch(bank.AddChatMessage{Turn: bank.Turn{
		Role:      bank.RoleSystem,
		Text:      RebootNotice,
		Timestamp: a.now(),
		IsFinal:   true,
	}})
	a.log.Info("session restarted")
}

// UpdateDebug applies persona settings. The text chat is rebuilt on the next
// message so the new instruction takes effect; an open realtime session
// keeps its setup until it reconnects.
func (a *Assistant) UpdateDebug(u bank.UpdateDebugSettings) bank.State {
	st := a.store.Dispatch(u)
	a.text.Invalidate()
	return st
}

func (a *Assistant) LiveStatus() live.StatusInfo { return a.live.Status() }

func (a *Assistant) AttachDevice(d live.Device) { a.live.AttachDevice(d) }

func (a *Assistant) DetachDevice(d live.Device) { a.live.DetachDevice(d) }

// OnConnect, OnDisconnect and OnText let a device link drive the session.
func (a *Assistant) OnConnect(ctx context.Context) error { return a.Connect(ctx) }

func (a *Assistant) OnDisconnect() { a.Disconnect() }

func (a *Assistant) OnText(ctx context.Context, text string) error { return a.Send(ctx, text) }

// Watch streams state and realtime status events until cancel is called or
// the session closes.
func (a *Assistant) Watch(buf int) (<-chan Event, func()) {
	return a.hub.subscribe(buf)
}

func (a *Assistant) Transfer() (bank.Receipt, error)     { return a.book(a.ledger.ExecuteTransfer) }
func (a *Assistant) PayBill() (bank.Receipt, error)      { return a.book(a.ledger.PayBill) }
func (a *Assistant) ExchangeFX() (bank.Receipt, error)   { return a.book(a.ledger.ExchangeFX) }
func (a *Assistant) BuyInsurance() (bank.Receipt, error) { return a.book(a.ledger.BuyTravelInsurance) }

func (a *Assistant) LockOffer() bank.State { return a.ledger.LockOffer() }

// book runs a ledger operation, records the transaction and tells the
// assistant about it in the background.
func (a *Assistant) book(op func() (bank.Receipt, error)) (bank.Receipt, error) {
	if a.isClosed() {
		return bank.Receipt{}, ErrClosed
	}
	r, err := op()
	if err != nil {
		return bank.Receipt{}, err
	}

	a.recordLedger(r)
	a.background(func(ctx context.Context) {
		if err := a.Send(ctx, r.Notice); err != nil {
			a.log.Warn("transaction notice not delivered", zap.Error(err))
		}
	})
	return r, nil
}

func (a *Assistant) recordLedger(r bank.Receipt) {
	msg := rabbitmq.LedgerMessage{
		EventID:     uuid.NewString(),
		SessionID:   a.id,
		TxID:        r.Transaction.ID,
		Type:        string(r.Transaction.Type),
		Description: r.Transaction.Description,
		Amount:      r.Transaction.Amount,
		Currency:    r.Transaction.Currency,
		Direction:   string(r.Transaction.Direction),
		Notice:      r.Notice,
		OccurredAt:  a.now(),
	}
	a.enqueue(func(ctx context.Context) {
		if a.opts.Events != nil {
			err := a.opts.Events.PublishLedgerEvent(ctx, msg)
			if err == nil {
				return
			}
			a.log.Warn("publish ledger event failed, archiving directly", zap.Error(err))
		}
		if a.opts.Archive != nil {
			if _, err := a.opts.Archive.RecordLedgerEvent(ctx, chat.NewLedgerEvent(msg)); err != nil {
				a.log.Error("archive ledger event", zap.Error(err))
			}
		}
	})
}

// onChange runs after every store update.
func (a *Assistant) onChange(c bank.Change) {
	st := c.State
	a.hub.publish(Event{Kind: EventState, State: &st})

	var archiveTurns bool
	var summary, through string
	for _, act := range c.Actions {
		switch v := act.(type) {
		case bank.AddChatMessage, bank.UpsertChatMessage:
			archiveTurns = true
		case bank.SetSummary:
			summary = v.Summary
		case bank.PruneHistory:
			through = v.ThroughID
		}
	}
	if archiveTurns {
		a.archiveTurns(st.ChatHistory)
	}
	if summary != "" && a.opts.Archive != nil {
		a.enqueue(func(ctx context.Context) {
			if err := a.opts.Archive.RecordSummary(ctx, a.id, summary, through); err != nil {
				a.log.Error("archive summary", zap.Error(err))
			}
		})
	}

	a.compactor.MaybeRun(st)
	a.advise(st)
}

func (a *Assistant) archiveTurns(history []bank.Turn) {
	if a.opts.Archive == nil {
		return
	}
	var pending []bank.Turn
	a.amu.Lock()
	for _, t := range history {
		if t.IsFinal && t.ID != "" && !a.archived[t.ID] {
			a.archived[t.ID] = true
			pending = append(pending, t)
		}
	}
	a.amu.Unlock()

	for _, t := range pending {
		a.enqueue(func(ctx context.Context) {
			if err := a.opts.Archive.RecordTurn(ctx, a.id, t); err != nil {
				a.log.Error("archive turn", zap.String("turn_id", t.ID), zap.Error(err))
			}
		})
	}
}

func (a *Assistant) advise(st bank.State) {
	for _, adv := range a.advisor.check(st, a.live.IsConnected()) {
		if err := a.live.SendText(adv.text); err != nil {
			a.advisor.settle(adv.rule, false)
			a.log.Warn("advisor event not delivered", zap.Error(err))
			continue
		}
		a.advisor.settle(adv.rule, true)
		if len(adv.actions) > 0 {
			a.store.Dispatch(adv.actions...)
		}
	}
}

func (a *Assistant) enqueue(job func(context.Context)) {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		return
	}
	a.jobs <- job
}

func (a *Assistant) runJobs() {
	defer a.wg.Done()
	for job := range a.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		job(ctx)
		cancel()
	}
}

func (a *Assistant) background(fn func(context.Context)) {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		return
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		fn(context.Background())
	}()
}

func (a *Assistant) isClosed() bool {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	return a.closed
}

// Settle waits for background notices and summaries started so far, then
// drains the archive queue up to that point.
func (a *Assistant) Settle() {
	a.bg.Wait()
	a.compactor.Wait()
	done := make(chan struct{})
	a.enqueue(func(context.Context) { close(done) })
	if !a.isClosed() {
		<-done
	}
}

// Close ends the session and releases everything it holds. Safe to call
// more than once.
func (a *Assistant) Close(ctx context.Context) {
	a.closeMu.Lock()
	if a.closed {
		a.closeMu.Unlock()
		return
	}
	a.closed = true
	a.closeMu.Unlock()

	a.live.Disconnect()
	a.bg.Wait()
	a.compactor.Wait()
	a.unsubscribe()

	a.closeMu.Lock()
	close(a.jobs)
	a.closeMu.Unlock()
	a.wg.Wait()
	a.hub.close()

	if a.opts.Archive != nil {
		if err := a.opts.Archive.CloseSession(ctx, a.id); err != nil {
			a.log.Warn("close archived session", zap.Error(err))
		}
	}
	a.log.Info("session closed")
}
