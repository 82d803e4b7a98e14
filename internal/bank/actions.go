package bank

import "time"

// Action is a state command. The set is closed: only the types in this file
// implement it.
type Action interface {
	action()
}

type Navigate struct{ Screen Screen }

type UpdateBalance struct {
	Currency string
	Delta    float64
}

// ExecuteTransaction prepends Tx to the transaction list.
type ExecuteTransaction struct{ Tx Transaction }

type SetLoanParams struct {
	Amount float64
	Tenure int
}

type SetFinancials struct {
	Salary      *float64
	MonthlyDebt *float64
}

type SetCompany struct{ Name string }

type SetCardDigits struct{ Last4 string }

// SetTransferDetails keeps the current value of every nil field; empty
// currencies also keep the current value.
type SetTransferDetails struct {
	Amount       *float64
	Payee        *string
	FromCurrency string
	ToCurrency   string
}

type SetBillDetails struct {
	Merchant *string
	Amount   *float64
}

// SetFXDetails treats empty currencies and a zero amount as "keep".
type SetFXDetails struct {
	BuyCurrency  string
	SellCurrency string
	Amount       float64
}

type ToggleFXCard struct{ Show bool }

type SetTravelDetails struct {
	Destination *string
	Month       *string
}

// SetInsuranceAddon makes membership of Addon equal Active.
type SetInsuranceAddon struct {
	Addon  string
	Active bool
}

type ToggleRewardModal struct{ Show bool }

type SetDocStatus struct{ Status DocumentStatus }

type SetVerificationStep struct{ Step VerificationStep }

type ToggleStatusWidget struct{ Show bool }

type SetOfferLocked struct{ Locked bool }

type SetHaruState struct {
	Active  bool
	Message string
}

// UpdateDebugSettings merges the non-nil fields.
type UpdateDebugSettings struct {
	Tone         *int
	Language     *Language
	DTIThreshold *int
	MockMode     *bool
}

type ToggleDebugPanel struct{ Show bool }

type ToggleChatPanel struct{ Open bool }

// AddChatMessage appends Turn unless a turn with the same id exists.
type AddChatMessage struct{ Turn Turn }

// UpsertChatMessage updates the open turn of Role within the trailing run of
// open turns, or appends a new turn when there is none. Open turns behind a
// final turn are never reused.
type UpsertChatMessage struct {
	ID        string // used only when a new turn is appended
	Role      Role
	Text      string
	IsFinal   bool
	Timestamp time.Time
}

// FinalizeOpenTurns closes every turn still open for append, used when the
// realtime channel that was writing them goes away.
type FinalizeOpenTurns struct{}

type SetSummary struct{ Summary string }

// PruneHistory drops the history prefix ending at ThroughID. It is a no-op
// when that turn is gone.
type PruneHistory struct{ ThroughID string }

func (Navigate) action()            {}
func (UpdateBalance) action()       {}
func (ExecuteTransaction) action()  {}
func (SetLoanParams) action()       {}
func (SetFinancials) action()       {}
func (SetCompany) action()          {}
func (SetCardDigits) action()       {}
func (SetTransferDetails) action()  {}
func (SetBillDetails) action()      {}
func (SetFXDetails) action()        {}
func (ToggleFXCard) action()        {}
func (SetTravelDetails) action()    {}
func (SetInsuranceAddon) action()   {}
func (ToggleRewardModal) action()   {}
func (SetDocStatus) action()        {}
func (SetVerificationStep) action() {}
func (ToggleStatusWidget) action()  {}
func (SetOfferLocked) action()      {}
func (SetHaruState) action()        {}
func (UpdateDebugSettings) action() {}
func (ToggleDebugPanel) action()    {}
func (ToggleChatPanel) action()     {}
func (AddChatMessage) action()      {}
func (UpsertChatMessage) action()   {}
func (FinalizeOpenTurns) action()   {}
func (SetSummary) action()          {}
func (PruneHistory) action()        {}

// reduce applies a to s in place. s must already be a private copy.
func reduce(s *State, a Action) {
	switch a := a.(type) {
	case Navigate:
		s.CurrentScreen = a.Screen

	case UpdateBalance:
		for i := range s.Accounts {
			if s.Accounts[i].Currency == a.Currency {
				s.Accounts[i].Balance += a.Delta
			}
		}
	case ExecuteTransaction:
		s.Transactions = append([]Transaction{a.Tx}, s.Transactions...)

	case SetLoanParams:
		s.LoanAmount = a.Amount
		s.LoanTenure = a.Tenure
	case SetFinancials:
		if a.Salary != nil {
			s.Salary = *a.Salary
		}
		if a.MonthlyDebt != nil {
			s.MonthlyDebt = *a.MonthlyDebt
		}

	case SetCompany:
		s.CompanyName = a.Name
	case SetCardDigits:
		s.CardLast4 = a.Last4

	case SetTransferDetails:
		if a.Amount != nil {
			s.TransferAmount = *a.Amount
		}
		if a.Payee != nil {
			s.TransferPayee = *a.Payee
		}
		if a.FromCurrency != "" {
			s.TransferFromCurrency = a.FromCurrency
		}
		if a.ToCurrency != "" {
			s.TransferToCurrency = a.ToCurrency
		}
	case SetBillDetails:
		if a.Amount != nil {
			s.BillAmount = *a.Amount
		}
		if a.Merchant != nil {
			s.BillMerchant = *a.Merchant
		}

	case SetFXDetails:
		if a.BuyCurrency != "" {
			s.FXBuyCurrency = a.BuyCurrency
		}
		if a.SellCurrency != "" {
			s.FXSellCurrency = a.SellCurrency
		}
		if a.Amount != 0 {
			s.FXAmount = a.Amount
		}
	case ToggleFXCard:
		s.ShowFXRateCard = a.Show

	case SetTravelDetails:
		if a.Destination != nil {
			s.Destination = *a.Destination
		}
		if a.Month != nil {
			s.TravelMonth = *a.Month
		}
	case SetInsuranceAddon:
		kept := make([]string, 0, len(s.InsuranceAddons)+1)
		for _, addon := range s.InsuranceAddons {
			if addon != a.Addon {
				kept = append(kept, addon)
			}
		}
		if a.Active {
			kept = append(kept, a.Addon)
		}
		s.InsuranceAddons = kept
	case ToggleRewardModal:
		s.ShowRewardModal = a.Show

	case SetDocStatus:
		s.DocumentStatus = a.Status
	case SetVerificationStep:
		s.VerificationStep = a.Step
	case ToggleStatusWidget:
		s.ShowStatusWidget = a.Show
	case SetOfferLocked:
		s.OfferLocked = a.Locked
	case SetHaruState:
		s.HaruActive = a.Active
		s.HaruMessage = a.Message
	case UpdateDebugSettings:
		if a.Tone != nil {
			s.Debug.Tone = *a.Tone
		}
		if a.Language != nil {
			s.Debug.Language = *a.Language
		}
		if a.DTIThreshold != nil {
			s.Debug.DTIThreshold = *a.DTIThreshold
		}
		if a.MockMode != nil {
			s.Debug.MockMode = *a.MockMode
		}
	case ToggleDebugPanel:
		s.ShowDebugPanel = a.Show
	case ToggleChatPanel:
		s.ChatPanelOpen = a.Open

	case AddChatMessage:
		for _, t := range s.ChatHistory {
			if t.ID == a.Turn.ID {
				return
			}
		}
		s.ChatHistory = append(s.ChatHistory, a.Turn)
		s.ChatPanelOpen = true
	case UpsertChatMessage:
		upsertTurn(s, a)
	case FinalizeOpenTurns:
		for i := range s.ChatHistory {
			s.ChatHistory[i].IsFinal = true
		}
	case SetSummary:
		s.Summary = a.Summary
	case PruneHistory:
		for i, t := range s.ChatHistory {
			if t.ID == a.ThroughID {
				s.ChatHistory = append([]Turn{}, s.ChatHistory[i+1:]...)
				return
			}
		}
	}
}

func upsertTurn(s *State, a UpsertChatMessage) {
	// only the trailing run of open turns is eligible; a final turn ends it
	open := -1
	for i := len(s.ChatHistory) - 1; i >= 0 && !s.ChatHistory[i].IsFinal; i-- {
		if s.ChatHistory[i].Role == a.Role {
			open = i
			break
		}
	}

	if open >= 0 {
		s.ChatHistory[open].Text = a.Text
		s.ChatHistory[open].IsFinal = a.IsFinal
	} else {
		ts := a.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		s.ChatHistory = append(s.ChatHistory, Turn{
			ID:        a.ID,
			Role:      a.Role,
			Text:      a.Text,
			Timestamp: ts,
			IsFinal:   a.IsFinal,
		})
		s.ChatPanelOpen = true
	}

	if a.Role == RoleModel {
		s.HaruActive = true
		s.HaruMessage = a.Text
	}
}
