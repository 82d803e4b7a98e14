package chat

import "time"

type Session struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string     `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	Provider  string     `gorm:"type:varchar(32);not null" json:"provider"`
	Model     string     `gorm:"type:varchar(64);not null" json:"model"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Turn is a finalized conversation turn. (session_id, turn_id) is unique so
// re-archiving the same turn is a no-op.
type Turn struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:varchar(26);not null;index:uniq_chat_turn,unique,priority:1" json:"session_id"`
	TurnID    string    `gorm:"type:varchar(26);not null;index:uniq_chat_turn,unique,priority:2" json:"turn_id"`
	Role      string    `gorm:"type:varchar(16);index;not null" json:"role"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	SpokenAt  time.Time `json:"spoken_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (Turn) TableName() string { return "chat_turns" }

type Summary struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID     string    `gorm:"type:varchar(26);index;not null" json:"session_id"`
	Text          string    `gorm:"type:text;not null" json:"text"`
	ThroughTurnID string    `gorm:"type:varchar(26)" json:"through_turn_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Summary) TableName() string { return "chat_summaries" }

// LedgerEvent is a booked transaction delivered by the worker. EventID makes
// redelivery idempotent.
type LedgerEvent struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"event_id"`
	SessionID   string    `gorm:"type:varchar(26);index;not null" json:"session_id"`
	TxID        string    `gorm:"type:varchar(36);not null" json:"tx_id"`
	Type        string    `gorm:"type:varchar(32);not null" json:"type"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	Amount      float64   `gorm:"not null" json:"amount"`
	Currency    string    `gorm:"type:varchar(8);not null" json:"currency"`
	Direction   string    `gorm:"type:varchar(8);not null" json:"direction"`
	Notice      string    `gorm:"type:text" json:"notice"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (LedgerEvent) TableName() string { return "ledger_events" }
