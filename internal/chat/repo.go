package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Migrate creates or updates the archive tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Session{}, &Turn{}, &Summary{}, &LedgerEvent{})
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) CloseSession(ctx context.Context, sessionID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("session_id = ? AND closed_at IS NULL", sessionID).
		Update("closed_at", at).Error
}

func (r *Repo) getTurn(ctx context.Context, sessionID, turnID string) (*Turn, error) {
	var t Turn
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND turn_id = ?", sessionID, turnID).
		First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertTurnOrGetExisting inserts t, or returns the row already archived for
// the same (session_id, turn_id).
func (r *Repo) InsertTurnOrGetExisting(ctx context.Context, t *Turn) (*Turn, bool, error) {
	err := r.db.WithContext(ctx).Create(t).Error
	if err == nil {
		return t, true, nil
	}

	existing, getErr := r.getTurn(ctx, t.SessionID, t.TurnID)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// ListTurns returns turns in DESC id order (newest -> oldest).
func (r *Repo) ListTurns(ctx context.Context, sessionID string, limit int, beforeID uint64) ([]Turn, error) {
	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit)

	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var turns []Turn
	if err := q.Find(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}

func (r *Repo) InsertSummary(ctx context.Context, s *Summary) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) LatestSummary(ctx context.Context, sessionID string) (*Summary, error) {
	var s Summary
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) GetLedgerEventByEventID(ctx context.Context, eventID string) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

// InsertLedgerEventOrGetExisting tries to insert ev, but if event_id already
// exists it returns the stored row instead.
func (r *Repo) InsertLedgerEventOrGetExisting(ctx context.Context, ev *LedgerEvent) (*LedgerEvent, bool, error) {
	err := r.db.WithContext(ctx).Create(ev).Error
	if err == nil {
		return ev, true, nil
	}

	existing, getErr := r.GetLedgerEventByEventID(ctx, ev.EventID)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

// ListLedgerEvents returns events in DESC id order (newest -> oldest).
func (r *Repo) ListLedgerEvents(ctx context.Context, sessionID string, limit int) ([]LedgerEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var evs []LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&evs).Error; err != nil {
		return nil, err
	}
	return evs, nil
}
