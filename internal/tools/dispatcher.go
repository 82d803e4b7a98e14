// Package tools maps the assistant's tool calls onto bank store commands.
package tools

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/suPer8Hu/haru-bank/internal/bank"
	"go.uber.org/zap"
)

// Result is echoed back to the model. It is never nil.
type Result map[string]any

func success() Result { return Result{"success": true} }

func errorResult(err error) Result { return Result{"error": err.Error()} }

type handler func(d *Dispatcher, a args) (Result, error)

var table = map[string]handler{
	ToolNavigate:            (*Dispatcher).navigate,
	ToolCheckBalance:        (*Dispatcher).checkBalance,
	ToolGetExchangeRate:     (*Dispatcher).getExchangeRate,
	ToolSetLoanParameters:   (*Dispatcher).setLoanParameters,
	ToolFillTravelDetails:   (*Dispatcher).fillTravelDetails,
	ToolFillFXDetails:       (*Dispatcher).fillFXDetails,
	ToolFillTransferDetails: (*Dispatcher).fillTransferDetails,
	ToolFillBillDetails:     (*Dispatcher).fillBillDetails,
	ToolUpdateInsurance:     (*Dispatcher).updateInsurance,
}

type Dispatcher struct {
	store *bank.Store
	log   *zap.Logger
}

func NewDispatcher(store *bank.Store, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{store: store, log: log}
}

// Dispatch runs one tool call. Unknown names and malformed arguments come
// back as an error result so a chained exchange never stalls.
func (d *Dispatcher) Dispatch(name string, raw map[string]any) Result {
	h, ok := table[name]
	if !ok {
		d.log.Warn("unknown tool", zap.String("tool", name))
		return Result{"error": "unknown tool: " + name}
	}

	res, err := h(d, args(raw))
	if err != nil {
		d.log.Warn("tool rejected", zap.String("tool", name), zap.Any("args", raw), zap.Error(err))
		return errorResult(err)
	}
	d.log.Debug("tool executed", zap.String("tool", name), zap.Any("args", raw))
	return res
}

type navigateArgs struct {
	Screen bank.Screen
}

func decodeNavigate(a args) (navigateArgs, error) {
	s, ok, err := a.enum("screen", screenNames()...)
	if err != nil {
		return navigateArgs{}, err
	}
	if !ok {
		return navigateArgs{}, errors.New("screen is required")
	}
	return navigateArgs{Screen: bank.Screen(s)}, nil
}

func (d *Dispatcher) navigate(a args) (Result, error) {
	in, err := decodeNavigate(a)
	if err != nil {
		return nil, err
	}
	d.store.Dispatch(bank.Navigate{Screen: in.Screen})
	return success(), nil
}

func (d *Dispatcher) checkBalance(a args) (Result, error) {
	cur, ok, err := a.enum("currency", accountCurrencies...)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur = bank.HomeCurrency
	}
	var balance float64
	if acc, found := d.store.Snapshot().Account(cur); found {
		balance = acc.Balance
	}
	return Result{"balance": balance, "currency": cur}, nil
}

// getExchangeRate accepts any currency code; codes outside the table trade at 1.
func (d *Dispatcher) getExchangeRate(a args) (Result, error) {
	cur, _, err := a.str("currency")
	if err != nil {
		return nil, err
	}
	return Result{"rate": bank.Rate(cur), "base": bank.HomeCurrency}, nil
}

type loanArgs struct {
	Amount *float64
	Tenure *int
}

func decodeLoan(a args) (loanArgs, error) {
	var out loanArgs
	amount, ok, err := a.number("amount")
	if err != nil {
		return out, err
	}
	if ok {
		if amount < 0 {
			return out, errors.New("amount must not be negative")
		}
		out.Amount = &amount
	}
	tenure, ok, err := a.number("tenure")
	if err != nil {
		return out, err
	}
	if ok {
		months := int(math.Round(tenure))
		if months < 1 {
			return out, errors.New("tenure must be at least one month")
		}
		out.Tenure = &months
	}
	return out, nil
}

func (d *Dispatcher) setLoanParameters(a args) (Result, error) {
	in, err := decodeLoan(a)
	if err != nil {
		return nil, err
	}
	_, err = d.store.Transact(func(s bank.State) ([]bank.Action, error) {
		act := bank.SetLoanParams{Amount: s.LoanAmount, Tenure: s.LoanTenure}
		if in.Amount != nil {
			act.Amount = *in.Amount
		}
		if in.Tenure != nil {
			act.Tenure = *in.Tenure
		}
		return []bank.Action{act}, nil
	})
	if err != nil {
		return nil, err
	}
	return success(), nil
}

// monthAliases maps three-letter forms onto the schema's month names.
var monthAliases = map[string]string{
	"jan": "January",
	"feb": "February",
	"mar": "March",
	"dec": "December",
}

func decodeTravel(a args) (bank.SetTravelDetails, error) {
	var out bank.SetTravelDetails
	dest, ok, err := a.str("destination")
	if err != nil {
		return out, err
	}
	if ok {
		dest = strings.TrimSpace(dest)
		out.Destination = &dest
	}

	month, ok, err := a.str("month")
	if err != nil {
		return out, err
	}
	if ok {
		m := strings.ToLower(strings.TrimSpace(month))
		if full, alias := monthAliases[m]; alias {
			out.Month = &full
		} else {
			canon, _, err := a.enum("month", travelMonths...)
			if err != nil {
				return out, err
			}
			out.Month = &canon
		}
	}
	return out, nil
}

func (d *Dispatcher) fillTravelDetails(a args) (Result, error) {
	act, err := decodeTravel(a)
	if err != nil {
		return nil, err
	}
	d.store.Dispatch(act)
	return success(), nil
}

func currencyCode(a args, key string) (string, error) {
	s, _, err := a.str(key)
	if err != nil {
		return "", err
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if s != "" && len(s) != 3 {
		return "", fmt.Errorf("%s must be a 3-letter currency code", key)
	}
	return s, nil
}

func decodeFX(a args) (bank.SetFXDetails, error) {
	var out bank.SetFXDetails
	var err error
	if out.BuyCurrency, err = currencyCode(a, "buyCurrency"); err != nil {
		return out, err
	}
	if out.SellCurrency, err = currencyCode(a, "sellCurrency"); err != nil {
		return out, err
	}
	amount, ok, err := a.number("amount")
	if err != nil {
		return out, err
	}
	if ok && amount < 0 {
		return out, errors.New("amount must not be negative")
	}
	out.Amount = amount
	return out, nil
}

// fillFXDetails always takes the amount in the home currency.
func (d *Dispatcher) fillFXDetails(a args) (Result, error) {
	act, err := decodeFX(a)
	if err != nil {
		return nil, err
	}
	d.store.Dispatch(act)
	return success(), nil
}

func decodeTransfer(a args) (bank.SetTransferDetails, error) {
	var out bank.SetTransferDetails
	payee, ok, err := a.str("payee")
	if err != nil {
		return out, err
	}
	if ok {
		out.Payee = &payee
	}
	amount, ok, err := a.number("amount")
	if err != nil {
		return out, err
	}
	if ok {
		if amount < 0 {
			return out, errors.New("amount must not be negative")
		}
		out.Amount = &amount
	}
	if out.FromCurrency, _, err = a.enum("fromCurrency", accountCurrencies...); err != nil {
		return out, err
	}
	if out.ToCurrency, _, err = a.enum("toCurrency", accountCurrencies...); err != nil {
		return out, err
	}
	return out, nil
}

func (d *Dispatcher) fillTransferDetails(a args) (Result, error) {
	act, err := decodeTransfer(a)
	if err != nil {
		return nil, err
	}
	d.store.Dispatch(act)
	return success(), nil
}

func decodeBill(a args) (bank.SetBillDetails, error) {
	var out bank.SetBillDetails
	merchant, ok, err := a.str("merchant")
	if err != nil {
		return out, err
	}
	if ok {
		out.Merchant = &merchant
	}
	amount, ok, err := a.number("amount")
	if err != nil {
		return out, err
	}
	if ok {
		if amount < 0 {
			return out, errors.New("amount must not be negative")
		}
		out.Amount = &amount
	}
	return out, nil
}

func (d *Dispatcher) fillBillDetails(a args) (Result, error) {
	act, err := decodeBill(a)
	if err != nil {
		return nil, err
	}
	d.store.Dispatch(act)
	return success(), nil
}

func decodeInsurance(a args) (bank.SetInsuranceAddon, error) {
	addon, ok, err := a.enum("addon", insuranceAddons...)
	if err != nil {
		return bank.SetInsuranceAddon{}, err
	}
	if !ok {
		return bank.SetInsuranceAddon{}, errors.New("addon is required")
	}
	active, ok, err := a.boolean("active")
	if err != nil {
		return bank.SetInsuranceAddon{}, err
	}
	if !ok {
		return bank.SetInsuranceAddon{}, errors.New("active is required")
	}
	return bank.SetInsuranceAddon{Addon: addon, Active: active}, nil
}

func (d *Dispatcher) updateInsurance(a args) (Result, error) {
	act, err := decodeInsurance(a)
	if err != nil {
		return nil, err
	}
	d.store.Dispatch(act)
	return success(), nil
}
