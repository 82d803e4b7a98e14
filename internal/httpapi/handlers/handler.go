package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/suPer8Hu/haru-bank/internal/assistant"
	"github.com/suPer8Hu/haru-bank/internal/chat"
	"github.com/suPer8Hu/haru-bank/internal/common"
	"github.com/suPer8Hu/haru-bank/internal/config"
	"github.com/suPer8Hu/haru-bank/internal/httpapi/middleware"
	"go.uber.org/zap"
)

// Archive is the read side of the conversation archive.
type Archive interface {
	GetSession(ctx context.Context, sessionID string) (*chat.Session, error)
	ListTurns(ctx context.Context, sessionID string, limit int, beforeID uint64) ([]chat.Turn, error)
	LatestSummary(ctx context.Context, sessionID string) (*chat.Summary, error)
	ListLedgerEvents(ctx context.Context, sessionID string, limit int) ([]chat.LedgerEvent, error)
}

// Idempotency guards the ledger endpoints against replayed requests.
type Idempotency interface {
	Claim(ctx context.Context, scope, key string, ttl time.Duration) (claimed bool, stored []byte, err error)
	Complete(ctx context.Context, scope, key string, result []byte, ttl time.Duration) error
	Release(ctx context.Context, scope, key string) error
}

type Handler struct {
	Sessions *assistant.Sessions
	Archive  Archive
	Idem     Idempotency
	Cfg      config.Config
	Log      *zap.Logger

	upgrader websocket.Upgrader
}

// NewHandler wires the handlers. archive and idem may be nil.
func NewHandler(sessions *assistant.Sessions, archive Archive, idem Idempotency, cfg config.Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Sessions: sessions,
		Archive:  archive,
		Idem:     idem,
		Cfg:      cfg,
		Log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true, "sessions": h.Sessions.Len()})
}

// session resolves the assistant named by the caller's token.
func (h *Handler) session(c *gin.Context) (*assistant.Assistant, bool) {
	sid := c.GetString(middleware.SessionIDKey)
	if sid == "" {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return nil, false
	}
	a, ok := h.Sessions.Get(sid)
	if !ok {
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
		return nil, false
	}
	return a, true
}
