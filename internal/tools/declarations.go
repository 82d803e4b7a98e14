package tools

import (
	"github.com/suPer8Hu/haru-bank/internal/ai"
	"github.com/suPer8Hu/haru-bank/internal/bank"
)

const (
	ToolNavigate            = "navigate"
	ToolCheckBalance        = "checkBalance"
	ToolGetExchangeRate     = "getExchangeRate"
	ToolSetLoanParameters   = "setLoanParameters"
	ToolFillTravelDetails   = "fillTravelDetails"
	ToolFillFXDetails       = "fillFXDetails"
	ToolFillTransferDetails = "fillTransferDetails"
	ToolFillBillDetails     = "fillBillDetails"
	ToolUpdateInsurance     = "updateInsurance"
)

var (
	accountCurrencies = []string{"HKD", "USD", "JPY"}
	rateCurrencies    = []string{"JPY", "USD", "EUR"}
	travelMonths      = []string{"January", "February", "March", "December"}
	insuranceAddons   = []string{bank.AddonWinterSports, bank.AddonCarRental}
)

func screenNames() []string {
	out := make([]string, 0, len(bank.Screens))
	for _, s := range bank.Screens {
		out = append(out, string(s))
	}
	return out
}

func object(required []string, props map[string]*ai.Schema) *ai.Schema {
	return &ai.Schema{Type: ai.TypeObject, Properties: props, Required: required}
}

func str(desc string, enum ...string) *ai.Schema {
	return &ai.Schema{Type: ai.TypeString, Description: desc, Enum: enum}
}

func num(desc string) *ai.Schema {
	return &ai.Schema{Type: ai.TypeNumber, Description: desc}
}

// Declarations is the fixed tool table offered on both channels.
func Declarations() []ai.ToolSpec {
	return []ai.ToolSpec{
		{
			Name:        ToolNavigate,
			Description: "Navigates to a specific app screen.",
			Parameters: object([]string{"screen"}, map[string]*ai.Schema{
				"screen": str("", screenNames()...),
			}),
		},
		{
			Name:        ToolCheckBalance,
			Description: "Checks the balance of a specific currency account.",
			Parameters: object([]string{"currency"}, map[string]*ai.Schema{
				"currency": str("", accountCurrencies...),
			}),
		},
		{
			Name:        ToolGetExchangeRate,
			Description: "Gets the exchange rate (units per 1 HKD) for a currency.",
			Parameters: object([]string{"currency"}, map[string]*ai.Schema{
				"currency": str("", rateCurrencies...),
			}),
		},
		{
			Name:        ToolSetLoanParameters,
			Description: "Sets the loan amount and tenure.",
			Parameters: object([]string{"amount", "tenure"}, map[string]*ai.Schema{
				"amount": num("Loan amount in HKD"),
				"tenure": num("Loan tenure in months"),
			}),
		},
		{
			Name:        ToolFillTravelDetails,
			Description: "Prefills travel insurance details.",
			Parameters: object([]string{"destination"}, map[string]*ai.Schema{
				"destination": str(""),
				"month":       str("", travelMonths...),
			}),
		},
		{
			Name:        ToolFillFXDetails,
			Description: "Prefills FX trading details. Amount is always in HKD (Sell Amount).",
			Parameters: object([]string{"buyCurrency"}, map[string]*ai.Schema{
				"buyCurrency":  str("Currency to buy e.g. JPY"),
				"sellCurrency": str("Currency to sell e.g. HKD"),
				"amount":       num("Amount to sell (in HKD)"),
			}),
		},
		{
			Name:        ToolFillTransferDetails,
			Description: "Prefills transfer details.",
			Parameters: object([]string{"amount"}, map[string]*ai.Schema{
				"payee":        str(""),
				"amount":       num(""),
				"fromCurrency": str("", accountCurrencies...),
				"toCurrency":   str("", accountCurrencies...),
			}),
		},
		{
			Name:        ToolFillBillDetails,
			Description: "Prefills bill payment details.",
			Parameters: object([]string{"amount"}, map[string]*ai.Schema{
				"merchant": str(""),
				"amount":   num(""),
			}),
		},
		{
			Name:        ToolUpdateInsurance,
			Description: "Adds or removes insurance addons.",
			Parameters: object([]string{"addon", "active"}, map[string]*ai.Schema{
				"addon":  str("", insuranceAddons...),
				"active": {Type: ai.TypeBoolean},
			}),
		},
	}
}
