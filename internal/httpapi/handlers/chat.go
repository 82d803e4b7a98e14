package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/haru-bank/internal/assistant"
	"github.com/suPer8Hu/haru-bank/internal/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sendMessageReq struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	err := a.Send(c.Request.Context(), req.Message)
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 10002, "message required")
		return
	case errors.Is(err, assistant.ErrClosed):
		common.Fail(c, http.StatusGone, 41001, "session closed")
		return
	case err != nil:
		// the recovery notice is already in the history
		h.Log.Warn("chat message failed", zap.String("session_id", a.ID()), zap.Error(err))
		common.Fail(c, http.StatusBadGateway, 50201, "assistant unavailable, please retry")
		return
	}

	st := a.Snapshot()
	common.OK(c, gin.H{
		"messages":       st.ChatHistory,
		"haru_message":   st.HaruMessage,
		"current_screen": st.CurrentScreen,
	})
}

// ListChatMessages returns the in-memory history, or pages through the
// archive with ?source=archive together with the latest archived summary.
func (h *Handler) ListChatMessages(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}

	if c.Query("source") != "archive" {
		st := a.Snapshot()
		common.OK(c, gin.H{"messages": st.ChatHistory, "summary": st.Summary})
		return
	}
	if h.Archive == nil {
		common.Fail(c, http.StatusNotFound, 40403, "archive not configured")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}

	ctx := c.Request.Context()
	sess, err := h.Archive.GetSession(ctx, a.ID())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	turns, err := h.Archive.ListTurns(ctx, sess.SessionID, limit, beforeID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	// the summary covers turns that may no longer be in memory
	summary, err := h.Archive.LatestSummary(ctx, sess.SessionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(turns) > 0 {
		nextBeforeID = turns[len(turns)-1].ID
	}
	common.OK(c, gin.H{
		"messages":       turns,
		"summary":        summary,
		"next_before_id": nextBeforeID,
	})
}

func (h *Handler) RestartChat(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	a.Restart()
	common.OK(c, gin.H{"messages": a.Snapshot().ChatHistory})
}
