package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/haru-bank/internal/assistant"
	"github.com/suPer8Hu/haru-bank/internal/bank"
	"github.com/suPer8Hu/haru-bank/internal/common"
	"github.com/suPer8Hu/haru-bank/internal/store/redisstore"
	"go.uber.org/zap"
)

const IdempotencyHeader = "Idempotency-Key"

func bookings(a *assistant.Assistant) map[string]func() (bank.Receipt, error) {
	return map[string]func() (bank.Receipt, error){
		"transfer":  a.Transfer,
		"bill":      a.PayBill,
		"fx":        a.ExchangeFX,
		"insurance": a.BuyInsurance,
	}
}

// Book runs the confirm button of a banking screen. A repeated
// Idempotency-Key replays the first response instead of booking twice.
func (h *Handler) Book(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	kind := c.Param("kind")
	op, known := bookings(a)[kind]
	if !known {
		common.Fail(c, http.StatusNotFound, 40402, "unknown ledger operation")
		return
	}

	ctx := c.Request.Context()
	key := c.GetHeader(IdempotencyHeader)
	scope := a.ID() + ":" + kind
	guarded := key != "" && h.Idem != nil
	if guarded {
		claimed, stored, err := h.Idem.Claim(ctx, scope, key, h.Cfg.IdempotencyTTL)
		switch {
		case errors.Is(err, redisstore.ErrInProgress):
			common.Fail(c, http.StatusConflict, 40901, "request already in progress")
			return
		case err != nil:
			h.Log.Error("idempotency claim", zap.Error(err))
			common.Fail(c, http.StatusServiceUnavailable, 50301, "idempotency store unavailable")
			return
		case !claimed:
			c.Header("Idempotent-Replay", "true")
			c.Data(http.StatusOK, "application/json; charset=utf-8", stored)
			return
		}
	}

	r, err := op()
	if err != nil {
		if guarded {
			if rerr := h.Idem.Release(ctx, scope, key); rerr != nil {
				h.Log.Warn("idempotency release", zap.Error(rerr))
			}
		}
		status, code := bookingError(err)
		common.Fail(c, status, code, err.Error())
		return
	}

	body, err := json.Marshal(gin.H{
		"code":    0,
		"message": "ok",
		"data": gin.H{
			"transaction": r.Transaction,
			"notice":      r.Notice,
			"state":       stateView(r.State),
		},
	})
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to encode receipt")
		return
	}
	if guarded {
		if err := h.Idem.Complete(ctx, scope, key, body, h.Cfg.IdempotencyTTL); err != nil {
			h.Log.Warn("idempotency complete", zap.Error(err))
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func bookingError(err error) (status, code int) {
	switch {
	case errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, 42201
	case errors.Is(err, bank.ErrInvalidAmount), errors.Is(err, bank.ErrUnknownAccount):
		return http.StatusBadRequest, 10003
	case errors.Is(err, assistant.ErrClosed):
		return http.StatusGone, 41001
	default:
		return http.StatusInternalServerError, 50001
	}
}

// ListLedgerEvents returns the archived transactions of the session.
func (h *Handler) ListLedgerEvents(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	if h.Archive == nil {
		common.OK(c, gin.H{"events": a.Snapshot().Transactions})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	events, err := h.Archive.ListLedgerEvents(c.Request.Context(), a.ID(), limit)
	if err != nil {
		h.Log.Error("list ledger events", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list ledger events")
		return
	}
	common.OK(c, gin.H{"events": events})
}
