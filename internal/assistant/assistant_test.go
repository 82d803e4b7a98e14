package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/haru-bank/internal/ai"
	"github.com/suPer8Hu/haru-bank/internal/bank"
	"github.com/suPer8Hu/haru-bank/internal/chat"
	"github.com/suPer8Hu/haru-bank/internal/common"
	"github.com/suPer8Hu/haru-bank/internal/live"
	"github.com/suPer8Hu/haru-bank/internal/store/rabbitmq"
	"github.com/suPer8Hu/haru-bank/internal/textchat"
)

const waitFor = 2 * time.Second

type memArchive struct {
	mu        sync.Mutex
	opened    []string
	closed    []string
	turns     []bank.Turn
	summaries []string
	events    []*chat.LedgerEvent
}

func (m *memArchive) OpenSession(_ context.Context, provider, model string) (*chat.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &chat.Session{SessionID: common.NewULID(), Provider: provider, Model: model}
	m.opened = append(m.opened, s.SessionID)
	return s, nil
}

func (m *memArchive) CloseSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, id)
	return nil
}

func (m *memArchive) RecordTurn(_ context.Context, _ string, t bank.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return nil
}

func (m *memArchive) RecordSummary(_ context.Context, _ string, text, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, text)
	return nil
}

func (m *memArchive) RecordLedgerEvent(_ context.Context, ev *chat.LedgerEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return true, nil
}

type publisher struct {
	mu   sync.Mutex
	err  error
	msgs []rabbitmq.LedgerMessage
}

func (p *publisher) PublishLedgerEvent(_ context.Context, m rabbitmq.LedgerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, m)
	return nil
}

// liveConn is a scripted realtime channel.
type liveConn struct {
	in   chan *ai.LiveEvent
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	texts    []string
	failText error
}

func newLiveConn() *liveConn {
	return &liveConn{in: make(chan *ai.LiveEvent, 16), done: make(chan struct{})}
}

func (c *liveConn) SendAudio([]byte, string) error { return nil }

func (c *liveConn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failText; err != nil {
		c.failText = nil
		return err
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *liveConn) SendToolResponses([]ai.ToolResponse) error { return nil }

func (c *liveConn) Receive() (*ai.LiveEvent, error) {
	select {
	case ev := <-c.in:
		return ev, nil
	case <-c.done:
		return nil, errors.New("closed")
	}
}

func (c *liveConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *liveConn) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type liveProvider struct {
	*ai.MockProvider
	conn *liveConn
	cfgs []ai.LiveConfig
}

func (p *liveProvider) ConnectLive(_ context.Context, cfg ai.LiveConfig) (ai.LiveConn, error) {
	p.cfgs = append(p.cfgs, cfg)
	return p.conn, nil
}

type device struct{}

type mic struct{ frames chan []byte }

func (m mic) Frames() <-chan []byte { return m.frames }
func (m mic) Close() error          { return nil }

type speaker struct{}

func (speaker) Play(live.Playback) error { return nil }
func (speaker) Stop([]string) error      { return nil }
func (speaker) Close() error             { return nil }

func (device) OpenMicrophone(context.Context) (live.Microphone, error) {
	return mic{frames: make(chan []byte)}, nil
}

func (device) OpenSpeaker() (live.Speaker, error) { return speaker{}, nil }

type fixture struct {
	a       *Assistant
	archive *memArchive
	live    *liveProvider
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		archive: &memArchive{},
		live:    &liveProvider{MockProvider: ai.NewMockProvider(), conn: newLiveConn()},
	}
	reg := ai.NewRegistry()
	reg.Register("gemini", func(context.Context) (ai.Provider, error) { return f.live, nil })
	reg.Register(MockProvider, func(context.Context) (ai.Provider, error) { return ai.NewMockProvider(), nil })

	opts := Options{
		Providers:        reg,
		Provider:         "gemini",
		HistoryThreshold: 10,
		SummarizeCount:   6,
		ChatTimeout:      time.Second,
		Archive:          f.archive,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.a = New("01TESTSESSIONID00000000000", opts)
	t.Cleanup(func() { f.a.Close(context.Background()) })
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.a.AttachDevice(device{})
	require.NoError(t, f.a.Connect(context.Background()))
	f.live.conn.in <- &ai.LiveEvent{SetupComplete: true}
	require.Eventually(t, func() bool {
		return f.a.LiveStatus().Status == live.StatusConnected
	}, waitFor, time.Millisecond)
}

func lastTurn(st bank.State) bank.Turn {
	return st.ChatHistory[len(st.ChatHistory)-1]
}

func TestSend_TextFallback(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.a.Send(context.Background(), "I want to transfer money"))

	st := f.a.Snapshot()
	assert.Equal(t, bank.ScreenTransfer, st.CurrentScreen)
	require.Len(t, st.ChatHistory, 2)
	assert.Equal(t, bank.RoleUser, st.ChatHistory[0].Role)
	assert.True(t, st.ChatHistory[0].IsFinal)
	assert.Equal(t, bank.RoleModel, st.ChatHistory[1].Role)
	assert.Contains(t, st.ChatHistory[1].Text, "navigate")

	assert.ErrorIs(t, f.a.Send(context.Background(), "   "), ErrEmptyMessage)
}

func TestSend_ProviderFailureRecovers(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Provider = "missing" })

	err := f.a.Send(context.Background(), "hello")
	require.Error(t, err)

	st := f.a.Snapshot()
	require.Len(t, st.ChatHistory, 2)
	assert.Equal(t, "hello", st.ChatHistory[0].Text)
	assert.Equal(t, bank.RoleSystem, st.ChatHistory[1].Role)
	assert.Equal(t, textchat.RecoveryNotice, st.ChatHistory[1].Text)
}

func TestRestart(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.a.Send(context.Background(), "hello"))

	f.a.Restart()
	st := f.a.Snapshot()
	assert.Equal(t, RebootNotice, lastTurn(st).Text)
	assert.Equal(t, bank.RoleSystem, lastTurn(st).Role)
	assert.Equal(t, live.StatusIdle, f.a.LiveStatus().Status)
}

func TestTransfer_BooksAndNotifies(t *testing.T) {
	f := newFixture(t, nil)

	res := f.a.Tool("fillTransferDetails", map[string]any{"amount": 500, "payee": "Alex"})
	require.Equal(t, true, res["success"])

	r, err := f.a.Transfer()
	require.NoError(t, err)
	assert.Contains(t, r.Notice, "[TRANSACTION] Type: Transfer")
	hkd, _ := r.State.Account("HKD")
	assert.Equal(t, 244500.0, hkd.Balance)

	f.a.Settle()

	st := f.a.Snapshot()
	var sawNotice bool
	for _, turn := range st.ChatHistory {
		if turn.Role == bank.RoleUser && strings.HasPrefix(turn.Text, "[TRANSACTION]") {
			sawNotice = true
		}
	}
	assert.True(t, sawNotice)

	f.archive.mu.Lock()
	defer f.archive.mu.Unlock()
	require.Len(t, f.archive.events, 1)
	ev := f.archive.events[0]
	assert.Equal(t, r.Transaction.ID, ev.TxID)
	assert.Equal(t, f.a.ID(), ev.SessionID)
	assert.Equal(t, 500.0, ev.Amount)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	f := newFixture(t, nil)
	f.a.Tool("fillTransferDetails", map[string]any{"amount": 5000, "fromCurrency": "USD", "payee": "Alex"})

	_, err := f.a.Transfer()
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	f.a.Settle()
	assert.Empty(t, f.a.Snapshot().ChatHistory)
}

func TestLedgerEvents_PublishedWhenConfigured(t *testing.T) {
	pub := &publisher{}
	f := newFixture(t, func(o *Options) { o.Events = pub })
	f.a.Tool("fillBillDetails", map[string]any{"merchant": "CLP Power", "amount": 300})

	_, err := f.a.PayBill()
	require.NoError(t, err)
	f.a.Settle()

	pub.mu.Lock()
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, string(bank.TxBillPayment), pub.msgs[0].Type)
	assert.NotEmpty(t, pub.msgs[0].EventID)
	pub.mu.Unlock()

	f.archive.mu.Lock()
	assert.Empty(t, f.archive.events)
	f.archive.mu.Unlock()

	// a failed publish falls back to the archive
	pub.mu.Lock()
	pub.err = errors.New("broker down")
	pub.mu.Unlock()
	f.a.Tool("fillBillDetails", map[string]any{"merchant": "Water", "amount": 100})
	_, err = f.a.PayBill()
	require.NoError(t, err)
	f.a.Settle()

	f.archive.mu.Lock()
	assert.Len(t, f.archive.events, 1)
	f.archive.mu.Unlock()
}

func TestArchive_FinalTurnsOnce(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.a.Send(context.Background(), "hello"))
	f.a.Dispatch(bank.ToggleChatPanel{Open: true})
	require.NoError(t, f.a.Send(context.Background(), "again"))
	f.a.Settle()

	f.archive.mu.Lock()
	defer f.archive.mu.Unlock()
	require.Len(t, f.archive.turns, 4)
	ids := map[string]bool{}
	for _, turn := range f.archive.turns {
		assert.True(t, turn.IsFinal)
		ids[turn.ID] = true
	}
	assert.Len(t, ids, 4)
}

func TestCompaction(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.HistoryThreshold = 4
		o.SummarizeCount = 2
	})
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, f.a.Send(context.Background(), msg))
	}
	f.a.Settle()

	st := f.a.Snapshot()
	assert.NotEmpty(t, st.Summary)
	assert.LessOrEqual(t, len(st.ChatHistory), 5)

	f.archive.mu.Lock()
	defer f.archive.mu.Unlock()
	assert.NotEmpty(t, f.archive.summaries)
}

func TestLive_SendAndTranscripts(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	require.Len(t, f.live.cfgs, 1)
	assert.Contains(t, f.live.cfgs[0].SystemInstruction, `You are "Haru"`)
	assert.NotEmpty(t, f.live.cfgs[0].Tools)

	require.NoError(t, f.a.Send(context.Background(), "hello Haru"))
	assert.Equal(t, []string{"hello Haru"}, f.live.conn.Texts())
	assert.Equal(t, "hello Haru", lastTurn(f.a.Snapshot()).Text)

	f.live.conn.in <- &ai.LiveEvent{OutputTranscript: "Hi"}
	f.live.conn.in <- &ai.LiveEvent{OutputTranscript: " there", TurnComplete: true}
	require.Eventually(t, func() bool {
		last := lastTurn(f.a.Snapshot())
		return last.Role == bank.RoleModel && last.IsFinal
	}, waitFor, time.Millisecond)

	st := f.a.Snapshot()
	assert.Equal(t, "Hi there", lastTurn(st).Text)
	assert.Equal(t, "Hi there", st.HaruMessage)
	assert.Len(t, st.ChatHistory, 2)
}

func TestLive_DisconnectClosesPartialTranscript(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	f.live.conn.in <- &ai.LiveEvent{OutputTranscript: "Let me look at your"}
	require.Eventually(t, func() bool {
		st := f.a.Snapshot()
		return len(st.ChatHistory) == 1 && st.ChatHistory[0].Role == bank.RoleModel
	}, waitFor, time.Millisecond)

	f.a.Disconnect()
	require.NoError(t, f.a.Send(context.Background(), "hello"))

	st := f.a.Snapshot()
	require.Len(t, st.ChatHistory, 3)
	assert.Equal(t, "Let me look at your", st.ChatHistory[0].Text)
	assert.True(t, st.ChatHistory[0].IsFinal)
	assert.Equal(t, bank.RoleUser, st.ChatHistory[1].Role)
	assert.Equal(t, "hello", st.ChatHistory[1].Text)
	assert.Equal(t, bank.RoleModel, st.ChatHistory[2].Role)
	assert.NotEqual(t, "Let me look at your", st.ChatHistory[2].Text)
	assert.False(t, st.HasOpenTurns())
}

func TestLive_MockModeHasNoRealtime(t *testing.T) {
	f := newFixture(t, nil)
	mock := true
	f.a.Dispatch(bank.UpdateDebugSettings{MockMode: &mock})
	f.a.AttachDevice(device{})

	err := f.a.Connect(context.Background())
	require.ErrorIs(t, err, ErrLiveUnsupported)
	assert.Equal(t, live.StatusIdle, f.a.LiveStatus().Status)
}

func TestAdvisor_DTIFiresOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	salary, debt := 10000.0, 2000.0
	f.a.Dispatch(bank.SetFinancials{Salary: &salary, MonthlyDebt: &debt})
	f.a.Dispatch(bank.SetLoanParams{Amount: 100000, Tenure: 12})

	texts := f.live.conn.Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, `[SYSTEM EVENT] User DTI is 103.3%. Trigger "DTI_High" warning.`, texts[0])
}

func TestAdvisor_UndeliveredEventFiresOnReconnect(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	f.live.conn.mu.Lock()
	f.live.conn.failText = errors.New("socket closed")
	f.live.conn.mu.Unlock()

	salary, debt := 10000.0, 2000.0
	f.a.Dispatch(bank.SetFinancials{Salary: &salary, MonthlyDebt: &debt})
	f.a.Dispatch(bank.SetLoanParams{Amount: 100000, Tenure: 12})

	assert.Empty(t, f.live.conn.Texts())
	require.Eventually(t, func() bool {
		return f.a.LiveStatus().Status == live.StatusIdle
	}, waitFor, time.Millisecond)

	f.live.conn = newLiveConn()
	f.connect(t)
	require.Eventually(t, func() bool { return len(f.live.conn.Texts()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, `[SYSTEM EVENT] User DTI is 103.3%. Trigger "DTI_High" warning.`, f.live.conn.Texts()[0])

	// delivered now, so it stays quiet
	f.a.Dispatch(bank.SetLoanParams{Amount: 120000, Tenure: 12})
	assert.Len(t, f.live.conn.Texts(), 1)
}

func TestAdvisor_UndeliveredSkiBundleKeepsAddonsOff(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	f.live.conn.mu.Lock()
	f.live.conn.failText = errors.New("socket closed")
	f.live.conn.mu.Unlock()

	dest, month := "Japan (Hokkaido)", "January"
	f.a.Dispatch(bank.SetTravelDetails{Destination: &dest, Month: &month})
	assert.False(t, f.a.Snapshot().HasAddon(bank.AddonWinterSports))

	f.live.conn = newLiveConn()
	f.connect(t)
	require.Eventually(t, func() bool {
		return f.a.Snapshot().HasAddon(bank.AddonWinterSports)
	}, waitFor, time.Millisecond)
	assert.Equal(t, []string{skiBundleEvent}, f.live.conn.Texts())
}

func TestAdvisor_SkiBundle(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	dest, month := "Japan (Hokkaido)", "January"
	f.a.Dispatch(bank.SetTravelDetails{Destination: &dest, Month: &month})

	st := f.a.Snapshot()
	assert.True(t, st.HasAddon(bank.AddonWinterSports))
	assert.True(t, st.HasAddon(bank.AddonCarRental))
	assert.Equal(t, []string{skiBundleEvent}, f.live.conn.Texts())

	// turning an add-on off does not re-trigger
	f.a.Dispatch(bank.SetInsuranceAddon{Addon: bank.AddonCarRental, Active: false})
	assert.Len(t, f.live.conn.Texts(), 1)
}

func TestAdvisor_WaitsForConnection(t *testing.T) {
	f := newFixture(t, nil)
	dest, month := "Tokyo, Japan", "december"
	f.a.Dispatch(bank.SetTravelDetails{Destination: &dest, Month: &month})
	assert.False(t, f.a.Snapshot().HasAddon(bank.AddonWinterSports))

	f.connect(t)
	require.Eventually(t, func() bool {
		return len(f.live.conn.Texts()) == 1 && f.a.Snapshot().HasAddon(bank.AddonWinterSports)
	}, waitFor, time.Millisecond)
}

func TestWatch(t *testing.T) {
	f := newFixture(t, nil)
	events, cancel := f.a.Watch(8)
	defer cancel()

	f.a.Dispatch(bank.Navigate{Screen: bank.ScreenPayBills})
	select {
	case ev := <-events:
		require.Equal(t, EventState, ev.Kind)
		assert.Equal(t, bank.ScreenPayBills, ev.State.CurrentScreen)
	case <-time.After(waitFor):
		t.Fatal("no state event")
	}
}

func TestSessions(t *testing.T) {
	archive := &memArchive{}
	reg := ai.NewRegistry()
	reg.Register(MockProvider, func(context.Context) (ai.Provider, error) { return ai.NewMockProvider(), nil })
	sessions := NewSessions(Options{Providers: reg, Provider: MockProvider, Archive: archive})

	a, err := sessions.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, archive.opened[0], a.ID())

	got, ok := sessions.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)

	b, err := sessions.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sessions.Len())

	assert.True(t, sessions.Remove(context.Background(), a.ID()))
	assert.False(t, sessions.Remove(context.Background(), a.ID()))
	assert.ErrorIs(t, a.Send(context.Background(), "hi"), ErrClosed)

	sessions.CloseAll(context.Background())
	assert.Equal(t, 0, sessions.Len())
	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, archive.closed)
}
