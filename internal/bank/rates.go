package bank

import (
	"math"
	"strings"
)

const HomeCurrency = "HKD"

// rates are units of currency per 1 HKD.
var rates = map[string]float64{
	"JPY": 19.45,
	"USD": 0.13,
	"HKD": 1,
	"EUR": 0.12,
}

// Rate returns the static rate for currency. Unknown currencies trade at 1.
func Rate(currency string) float64 {
	if r, ok := rates[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return r
	}
	return 1
}

// Rates returns a copy of the rate table.
func Rates() map[string]float64 {
	out := make(map[string]float64, len(rates))
	for k, v := range rates {
		out[k] = v
	}
	return out
}

// FXQuote is what the FX screen shows for the current form.
type FXQuote struct {
	SellCurrency string  `json:"sell_currency"`
	SellAmount   float64 `json:"sell_amount"`
	BuyCurrency  string  `json:"buy_currency"`
	BuyAmount    float64 `json:"buy_amount"`
	Rate         float64 `json:"rate"`
}

func (s State) FXQuote() FXQuote {
	r := Rate(s.FXBuyCurrency)
	return FXQuote{
		SellCurrency: HomeCurrency,
		SellAmount:   s.FXAmount,
		BuyCurrency:  s.FXBuyCurrency,
		BuyAmount:    s.FXAmount * r,
		Rate:         r,
	}
}

// LoanQuote is the loan calculator readout.
type LoanQuote struct {
	Amount         float64 `json:"amount"`
	Tenure         int     `json:"tenure"`
	MonthlyPayment float64 `json:"monthly_payment"`
	DTI            float64 `json:"dti"`
	HighRisk       bool    `json:"high_risk"`
}

func (s State) LoanQuote() LoanQuote {
	q := LoanQuote{Amount: s.LoanAmount, Tenure: s.LoanTenure}
	if s.LoanTenure > 0 {
		q.MonthlyPayment = math.Round(s.LoanAmount / float64(s.LoanTenure) * 1.05)
	}
	if s.Salary > 0 {
		q.DTI = (s.MonthlyDebt + q.MonthlyPayment) / s.Salary
		q.HighRisk = q.DTI > float64(s.Debug.DTIThreshold)/100
	}
	return q
}

// DTI is the advisor's debt-to-income ratio, using the raw instalment
// without the interest markup. ok is false when there is no salary.
func (s State) DTI() (dti float64, ok bool) {
	if s.Salary <= 0 || s.LoanTenure <= 0 {
		return 0, false
	}
	return (s.MonthlyDebt + s.LoanAmount/float64(s.LoanTenure)) / s.Salary, true
}
