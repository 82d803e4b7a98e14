// Package bank holds the application state of one banking session: the
// ledger, the screen forms the assistant can prefill, the chat history and
// the persona settings. All mutation goes through Store.Dispatch.
package bank

import (
	"fmt"
	"strings"
	"time"
)

type Screen string

const (
	ScreenHome            Screen = "home"
	ScreenLoanCalculator  Screen = "loan-calculator"
	ScreenPersonalInfo    Screen = "personal-info"
	ScreenDocumentUpload  Screen = "document-upload"
	ScreenTransfer        Screen = "transfer"
	ScreenPayBills        Screen = "pay-bills"
	ScreenFXTrading       Screen = "fx-trading"
	ScreenTravelInsurance Screen = "travel-insurance"
)

var Screens = []Screen{
	ScreenHome,
	ScreenLoanCalculator,
	ScreenPersonalInfo,
	ScreenTransfer,
	ScreenPayBills,
	ScreenFXTrading,
	ScreenTravelInsurance,
	ScreenDocumentUpload,
}

func ParseScreen(s string) (Screen, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, sc := range Screens {
		if string(sc) == s {
			return sc, nil
		}
	}
	return "", fmt.Errorf("unknown screen %q", s)
}

type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Turn is one utterance in the conversation. A turn stays open for append
// until IsFinal is set.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsFinal   bool      `json:"is_final"`
}

type Language string

const (
	LanguageEnglish   Language = "en"
	LanguageCantonese Language = "yue"
	LanguageMixed     Language = "mixed"
)

func ParseLanguage(s string) (Language, error) {
	switch l := Language(strings.ToLower(strings.TrimSpace(s))); l {
	case LanguageEnglish, LanguageCantonese, LanguageMixed:
		return l, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

type DebugSettings struct {
	Tone         int      `json:"tone"` // 0 strict .. 100 playful
	Language     Language `json:"language"`
	DTIThreshold int      `json:"dti_threshold"` // percent
	MockMode     bool     `json:"mock_mode"`
}

type TransactionType string

const (
	TxTransfer         TransactionType = "Transfer"
	TxBillPayment      TransactionType = "Bill Payment"
	TxFXExchange       TransactionType = "FX Exchange"
	TxLoanDisbursement TransactionType = "Loan Disbursement"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type Transaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	Amount      float64         `json:"amount"`
	Currency    string          `json:"currency"`
	Date        string          `json:"date"`
	Direction   Direction       `json:"direction"`
}

type Account struct {
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
}

type DocumentStatus string

const (
	DocIdle     DocumentStatus = "idle"
	DocAligning DocumentStatus = "aligning"
	DocCaptured DocumentStatus = "captured"
)

type VerificationStep string

const (
	VerifyIdle     VerificationStep = "idle"
	VerifyOCR      VerificationStep = "ocr"
	VerifyAML      VerificationStep = "aml"
	VerifyCredit   VerificationStep = "credit"
	VerifyComplete VerificationStep = "complete"
)

const (
	AddonWinterSports = "winter-sports"
	AddonCarRental    = "car-rental"
)

type State struct {
	CurrentScreen Screen `json:"current_screen"`

	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`

	TransferAmount       float64 `json:"transfer_amount"`
	TransferPayee        string  `json:"transfer_payee"`
	TransferFromCurrency string  `json:"transfer_from_currency"`
	TransferToCurrency   string  `json:"transfer_to_currency"`
	BillMerchant         string  `json:"bill_merchant"`
	BillAmount           float64 `json:"bill_amount"`

	LoanAmount  float64 `json:"loan_amount"`
	LoanTenure  int     `json:"loan_tenure"`
	MonthlyDebt float64 `json:"monthly_debt"`

	CompanyName string  `json:"company_name"`
	Salary      float64 `json:"salary"`
	CardLast4   string  `json:"card_last4"`

	FXBuyCurrency  string  `json:"fx_buy_currency"`
	FXSellCurrency string  `json:"fx_sell_currency"`
	FXAmount       float64 `json:"fx_amount"` // always in the home currency
	ShowFXRateCard bool    `json:"show_fx_rate_card"`

	Destination     string   `json:"destination"`
	TravelMonth     string   `json:"travel_month"`
	InsuranceAddons []string `json:"insurance_addons"`
	ShowRewardModal bool     `json:"show_reward_modal"`

	DocumentStatus   DocumentStatus   `json:"document_status"`
	VerificationStep VerificationStep `json:"verification_step"`

	ShowStatusWidget bool `json:"show_status_widget"`
	OfferLocked      bool `json:"offer_locked"`

	HaruActive    bool   `json:"haru_active"`
	HaruMessage   string `json:"haru_message"`
	ChatHistory   []Turn `json:"chat_history"`
	Summary       string `json:"conversation_summary"`
	ChatPanelOpen bool   `json:"chat_panel_open"`

	Debug          DebugSettings `json:"debug"`
	ShowDebugPanel bool          `json:"show_debug_panel"`
}

// InitialState is the state every new banking session starts from.
func InitialState() State {
	return State{
		CurrentScreen: ScreenHome,
		Accounts: []Account{
			{Currency: "HKD", Balance: 245000},
			{Currency: "USD", Balance: 1200},
			{Currency: "JPY", Balance: 0},
		},
		Transactions: []Transaction{
			{ID: "t1", Type: TxTransfer, Description: "To Alex Chen", Amount: 500, Currency: "HKD", Date: "2023-10-24", Direction: DirectionOut},
			{ID: "t2", Type: TxBillPayment, Description: "CLP Power", Amount: 1200, Currency: "HKD", Date: "2023-10-22", Direction: DirectionOut},
		},
		TransferFromCurrency: HomeCurrency,
		TransferToCurrency:   HomeCurrency,
		LoanAmount:           100000,
		LoanTenure:           12,
		FXBuyCurrency:        "JPY",
		FXSellCurrency:       HomeCurrency,
		FXAmount:             10000,
		InsuranceAddons:      []string{},
		DocumentStatus:       DocIdle,
		VerificationStep:     VerifyIdle,
		HaruMessage:          "Hi, I'm Haru. How can I help?",
		ChatHistory:          []Turn{},
		Debug: DebugSettings{
			Tone:         50,
			Language:     LanguageMixed,
			DTIThreshold: 50,
		},
	}
}

// Account returns the account for currency, if the customer holds one.
func (s State) Account(currency string) (Account, bool) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	for _, a := range s.Accounts {
		if a.Currency == currency {
			return a, true
		}
	}
	return Account{}, false
}

// HasOpenTurns reports whether some turn is still open for append.
func (s State) HasOpenTurns() bool {
	for _, t := range s.ChatHistory {
		if !t.IsFinal {
			return true
		}
	}
	return false
}

func (s State) HasAddon(addon string) bool {
	for _, a := range s.InsuranceAddons {
		if a == addon {
			return true
		}
	}
	return false
}

// clone deep-copies every slice so snapshots never alias store memory.
func (s State) clone() State {
	out := s
	out.Accounts = append([]Account(nil), s.Accounts...)
	out.Transactions = append([]Transaction(nil), s.Transactions...)
	out.InsuranceAddons = append([]string{}, s.InsuranceAddons...)
	out.ChatHistory = append([]Turn{}, s.ChatHistory...)
	return out
}
