package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/haru-bank/internal/auth"
	"github.com/suPer8Hu/haru-bank/internal/bank"
	"github.com/suPer8Hu/haru-bank/internal/common"
	"go.uber.org/zap"
)

func (h *Handler) CreateSession(c *gin.Context) {
	a, err := h.Sessions.Create(c.Request.Context())
	if err != nil {
		h.Log.Error("create session", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	token, err := auth.SignJWT(a.ID(), h.Cfg.JWTSecret, h.Cfg.TokenTTL)
	if err != nil {
		h.Sessions.Remove(c.Request.Context(), a.ID())
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"session_id": a.ID(),
		"token":      token,
		"expires_in": int(h.Cfg.TokenTTL.Seconds()),
		"state":      a.Snapshot(),
	})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	h.Sessions.Remove(c.Request.Context(), a.ID())
	common.OK(c, gin.H{"session_id": a.ID(), "closed": true})
}

func stateView(st bank.State) gin.H {
	return gin.H{
		"state":      st,
		"fx_quote":   st.FXQuote(),
		"loan_quote": st.LoanQuote(),
		"premium":    bank.InsurancePremium(st.InsuranceAddons),
	}
}

func (h *Handler) GetState(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	common.OK(c, stateView(a.Snapshot()))
}

type debugReq struct {
	Tone         *int    `json:"tone"`
	Language     *string `json:"language"`
	DTIThreshold *int    `json:"dti_threshold"`
	MockMode     *bool   `json:"mock_mode"`
}

func (h *Handler) UpdateDebug(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}

	var req debugReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Tone != nil && (*req.Tone < 0 || *req.Tone > 100) {
		common.Fail(c, http.StatusBadRequest, 10002, "tone must be between 0 and 100")
		return
	}
	if req.DTIThreshold != nil && (*req.DTIThreshold < 1 || *req.DTIThreshold > 100) {
		common.Fail(c, http.StatusBadRequest, 10002, "dti_threshold must be between 1 and 100")
		return
	}

	u := bank.UpdateDebugSettings{Tone: req.Tone, DTIThreshold: req.DTIThreshold, MockMode: req.MockMode}
	if req.Language != nil {
		lang, err := bank.ParseLanguage(*req.Language)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		u.Language = &lang
	}

	st := a.UpdateDebug(u)
	common.OK(c, gin.H{"debug": st.Debug})
}
