// Package chat archives banking sessions: finalized turns, the summaries
// that replaced them in the live history, and booked ledger events.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/haru-bank/internal/bank"
	"github.com/suPer8Hu/haru-bank/internal/common"
	"github.com/suPer8Hu/haru-bank/internal/store/rabbitmq"
)

var ErrInvalidEvent = errors.New("chat: ledger event needs event_id and session_id")

type Service struct {
	repo *Repo
	now  func() time.Time
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) OpenSession(ctx context.Context, provider, model string) (*Session, error) {
	session := &Session{
		SessionID: common.NewULID(),
		Provider:  provider,
		Model:     model,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return s.repo.GetSessionBySessionID(ctx, sessionID)
}

func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	return s.repo.CloseSession(ctx, sessionID, s.now())
}

// RecordTurn archives t if it is final and not empty. Recording the same
// turn twice stores it once.
func (s *Service) RecordTurn(ctx context.Context, sessionID string, t bank.Turn) error {
	if !t.IsFinal || strings.TrimSpace(t.Text) == "" || t.ID == "" {
		return nil
	}
	spoken := t.Timestamp
	if spoken.IsZero() {
		spoken = s.now()
	}
	_, _, err := s.repo.InsertTurnOrGetExisting(ctx, &Turn{
		SessionID: sessionID,
		TurnID:    t.ID,
		Role:      string(t.Role),
		Text:      t.Text,
		SpokenAt:  spoken,
	})
	return err
}

func (s *Service) RecordSummary(ctx context.Context, sessionID, text, throughTurnID string) error {
	return s.repo.InsertSummary(ctx, &Summary{
		SessionID:     sessionID,
		Text:          text,
		ThroughTurnID: throughTurnID,
	})
}

// RecordLedgerEvent stores ev and reports whether it was new.
func (s *Service) RecordLedgerEvent(ctx context.Context, ev *LedgerEvent) (bool, error) {
	if ev.EventID == "" || ev.SessionID == "" {
		return false, ErrInvalidEvent
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	_, created, err := s.repo.InsertLedgerEventOrGetExisting(ctx, ev)
	return created, err
}

func (s *Service) ListTurns(ctx context.Context, sessionID string, limit int, beforeID uint64) ([]Turn, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListTurns(ctx, sessionID, limit, beforeID)
}

func (s *Service) LatestSummary(ctx context.Context, sessionID string) (*Summary, error) {
	return s.repo.LatestSummary(ctx, sessionID)
}

func (s *Service) ListLedgerEvents(ctx context.Context, sessionID string, limit int) ([]LedgerEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListLedgerEvents(ctx, sessionID, limit)
}

// NewLedgerEvent maps a published ledger message onto its archive row.
func NewLedgerEvent(m rabbitmq.LedgerMessage) *LedgerEvent {
	return &LedgerEvent{
		EventID:     m.EventID,
		SessionID:   m.SessionID,
		TxID:        m.TxID,
		Type:        m.Type,
		Description: m.Description,
		Amount:      m.Amount,
		Currency:    m.Currency,
		Direction:   m.Direction,
		Notice:      m.Notice,
		OccurredAt:  m.OccurredAt,
	}
}
