package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/haru-bank/internal/bank"
	"github.com/suPer8Hu/haru-bank/internal/common"
	"github.com/suPer8Hu/haru-bank/internal/tools"
)

type navigateReq struct {
	Screen string `json:"screen" binding:"required"`
}

func (h *Handler) Navigate(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}

	var req navigateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	screen, err := bank.ParseScreen(req.Screen)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		return
	}

	st := a.Dispatch(bank.Navigate{Screen: screen})
	common.OK(c, gin.H{"current_screen": st.CurrentScreen})
}

// formTools maps a screen form to the tool that fills it, so hand-typed
// values go through the same validation as the assistant's.
var formTools = map[string]string{
	"loan":      tools.ToolSetLoanParameters,
	"transfer":  tools.ToolFillTransferDetails,
	"bill":      tools.ToolFillBillDetails,
	"fx":        tools.ToolFillFXDetails,
	"travel":    tools.ToolFillTravelDetails,
	"insurance": tools.ToolUpdateInsurance,
}

type financialsReq struct {
	Salary      *float64 `json:"salary"`
	MonthlyDebt *float64 `json:"monthly_debt"`
	Company     *string  `json:"company"`
	CardLast4   *string  `json:"card_last4"`
}

func (h *Handler) SubmitForm(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}

	form := c.Param("form")
	if form == "financials" {
		h.submitFinancials(c, a.Dispatch)
		return
	}

	name, known := formTools[form]
	if !known {
		common.Fail(c, http.StatusNotFound, 40402, "unknown form")
		return
	}

	var args map[string]any
	if err := c.ShouldBindJSON(&args); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	res := a.Tool(name, args)
	if msg, failed := res["error"]; failed {
		common.Fail(c, http.StatusBadRequest, 10002, fmt.Sprint(msg))
		return
	}
	common.OK(c, gin.H{"result": res, "state": stateView(a.Snapshot())})
}

func (h *Handler) submitFinancials(c *gin.Context, dispatch func(...bank.Action) bank.State) {
	var req financialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if (req.Salary != nil && *req.Salary < 0) || (req.MonthlyDebt != nil && *req.MonthlyDebt < 0) {
		common.Fail(c, http.StatusBadRequest, 10002, "amounts must not be negative")
		return
	}

	actions := []bank.Action{bank.SetFinancials{Salary: req.Salary, MonthlyDebt: req.MonthlyDebt}}
	if req.Company != nil {
		actions = append(actions, bank.SetCompany{Name: strings.TrimSpace(*req.Company)})
	}
	if req.CardLast4 != nil {
		digits := strings.TrimSpace(*req.CardLast4)
		if !isLast4(digits) {
			common.Fail(c, http.StatusBadRequest, 10002, "card_last4 must be 4 digits")
			return
		}
		actions = append(actions, bank.SetCardDigits{Last4: digits})
	}

	st := dispatch(actions...)
	common.OK(c, gin.H{"state": stateView(st)})
}

func isLast4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type uiReq struct {
	ChatPanelOpen    *bool   `json:"chat_panel_open"`
	DebugPanel       *bool   `json:"show_debug_panel"`
	FXRateCard       *bool   `json:"show_fx_rate_card"`
	RewardModal      *bool   `json:"show_reward_modal"`
	StatusWidget     *bool   `json:"show_status_widget"`
	DocumentStatus   *string `json:"document_status"`
	VerificationStep *string `json:"verification_step"`
}

var (
	docStatuses = map[string]bank.DocumentStatus{
		string(bank.DocIdle):     bank.DocIdle,
		string(bank.DocAligning): bank.DocAligning,
		string(bank.DocCaptured): bank.DocCaptured,
	}
	verificationSteps = map[string]bank.VerificationStep{
		string(bank.VerifyIdle):     bank.VerifyIdle,
		string(bank.VerifyOCR):      bank.VerifyOCR,
		string(bank.VerifyAML):      bank.VerifyAML,
		string(bank.VerifyCredit):   bank.VerifyCredit,
		string(bank.VerifyComplete): bank.VerifyComplete,
	}
)

// UpdateUI applies panel toggles and the document capture flow.
func (h *Handler) UpdateUI(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}

	var req uiReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var actions []bank.Action
	if req.ChatPanelOpen != nil {
		actions = append(actions, bank.ToggleChatPanel{Open: *req.ChatPanelOpen})
	}
	if req.DebugPanel != nil {
		actions = append(actions, bank.ToggleDebugPanel{Show: *req.DebugPanel})
	}
	if req.FXRateCard != nil {
		actions = append(actions, bank.ToggleFXCard{Show: *req.FXRateCard})
	}
	if req.RewardModal != nil {
		actions = append(actions, bank.ToggleRewardModal{Show: *req.RewardModal})
	}
	if req.StatusWidget != nil {
		actions = append(actions, bank.ToggleStatusWidget{Show: *req.StatusWidget})
	}
	if req.DocumentStatus != nil {
		s, known := docStatuses[*req.DocumentStatus]
		if !known {
			common.Fail(c, http.StatusBadRequest, 10002, "unknown document_status")
			return
		}
		actions = append(actions, bank.SetDocStatus{Status: s})
	}
	if req.VerificationStep != nil {
		s, known := verificationSteps[*req.VerificationStep]
		if !known {
			common.Fail(c, http.StatusBadRequest, 10002, "unknown verification_step")
			return
		}
		actions = append(actions, bank.SetVerificationStep{Step: s})
	}

	st := a.Dispatch(actions...)
	common.OK(c, stateView(st))
}

func (h *Handler) LockOffer(c *gin.Context) {
	a, ok := h.session(c)
	if !ok {
		return
	}
	st := a.LockOffer()
	common.OK(c, gin.H{"offer_locked": st.OfferLocked, "haru_message": st.HaruMessage})
}
