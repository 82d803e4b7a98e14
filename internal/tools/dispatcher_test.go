package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/haru-bank/internal/bank"
)

func newTestDispatcher() (*bank.Store, *Dispatcher) {
	s := bank.NewStore(bank.InitialState())
	return s, NewDispatcher(s, nil)
}

func TestCheckBalance(t *testing.T) {
	_, d := newTestDispatcher()

	res := d.Dispatch(ToolCheckBalance, map[string]any{"currency": "USD"})
	assert.Equal(t, Result{"balance": 1200.0, "currency": "USD"}, res)

	res = d.Dispatch(ToolCheckBalance, map[string]any{})
	assert.Equal(t, Result{"balance": 245000.0, "currency": "HKD"}, res)

	res = d.Dispatch(ToolCheckBalance, map[string]any{"currency": "GBP"})
	assert.Contains(t, res, "error")
}

func TestUpdateInsurance_Idempotent(t *testing.T) {
	s, d := newTestDispatcher()
	call := map[string]any{"addon": "winter-sports", "active": true}

	assert.Equal(t, Result{"success": true}, d.Dispatch(ToolUpdateInsurance, call))
	assert.Equal(t, Result{"success": true}, d.Dispatch(ToolUpdateInsurance, call))

	assert.Equal(t, []string{"winter-sports"}, s.Snapshot().InsuranceAddons)
}

func TestUpdateInsurance_RejectsStringBool(t *testing.T) {
	s, d := newTestDispatcher()

	res := d.Dispatch(ToolUpdateInsurance, map[string]any{"addon": "car-rental", "active": "true"})
	assert.Equal(t, Result{"error": "active must be a boolean"}, res)
	assert.Empty(t, s.Snapshot().InsuranceAddons)

	res = d.Dispatch(ToolUpdateInsurance, map[string]any{"addon": "jetski", "active": true})
	assert.Contains(t, res["error"], "addon must be one of")
}

func TestFillFXDetails_MatchesExchangeRate(t *testing.T) {
	s, d := newTestDispatcher()

	res := d.Dispatch(ToolFillFXDetails, map[string]any{"buyCurrency": "jpy", "amount": 1000.0})
	require.Equal(t, Result{"success": true}, res)

	rate := d.Dispatch(ToolGetExchangeRate, map[string]any{"currency": "JPY"})
	assert.Equal(t, "HKD", rate["base"])

	q := s.Snapshot().FXQuote()
	assert.Equal(t, "JPY", q.BuyCurrency)
	assert.InDelta(t, rate["rate"].(float64)*1000, q.BuyAmount, 1e-9)
}

func TestFillFXDetails_ZeroAmountKeepsState(t *testing.T) {
	s, d := newTestDispatcher()
	d.Dispatch(ToolFillFXDetails, map[string]any{"buyCurrency": "USD", "amount": 0.0})
	assert.Equal(t, 10000.0, s.Snapshot().FXAmount)
}

func TestGetExchangeRate_UnknownIsUnit(t *testing.T) {
	_, d := newTestDispatcher()
	assert.Equal(t, Result{"rate": 1.0, "base": "HKD"}, d.Dispatch(ToolGetExchangeRate, map[string]any{"currency": "GBP"}))
	assert.Equal(t, Result{"rate": 0.12, "base": "HKD"}, d.Dispatch(ToolGetExchangeRate, map[string]any{"currency": "EUR"}))
}

func TestNavigate(t *testing.T) {
	s, d := newTestDispatcher()

	assert.Equal(t, Result{"success": true}, d.Dispatch(ToolNavigate, map[string]any{"screen": "fx-trading"}))
	assert.Equal(t, bank.ScreenFXTrading, s.Snapshot().CurrentScreen)

	res := d.Dispatch(ToolNavigate, map[string]any{})
	assert.Equal(t, Result{"error": "screen is required"}, res)

	res = d.Dispatch(ToolNavigate, map[string]any{"screen": 3.0})
	assert.Equal(t, Result{"error": "screen must be a string"}, res)
	assert.Equal(t, bank.ScreenFXTrading, s.Snapshot().CurrentScreen)
}

func TestSetLoanParameters_FallsBackPerField(t *testing.T) {
	s, d := newTestDispatcher()

	d.Dispatch(ToolSetLoanParameters, map[string]any{"tenure": 24.0})
	st := s.Snapshot()
	assert.Equal(t, 100000.0, st.LoanAmount)
	assert.Equal(t, 24, st.LoanTenure)

	res := d.Dispatch(ToolSetLoanParameters, map[string]any{"amount": 50000.0, "tenure": 0.0})
	assert.Contains(t, res, "error")
	assert.Equal(t, 100000.0, s.Snapshot().LoanAmount)
}

func TestFillTravelDetails_MonthForms(t *testing.T) {
	s, d := newTestDispatcher()

	d.Dispatch(ToolFillTravelDetails, map[string]any{"destination": " Hokkaido, Japan ", "month": "dec"})
	st := s.Snapshot()
	assert.Equal(t, "Hokkaido, Japan", st.Destination)
	assert.Equal(t, "December", st.TravelMonth)

	d.Dispatch(ToolFillTravelDetails, map[string]any{"month": "FEBRUARY"})
	st = s.Snapshot()
	assert.Equal(t, "February", st.TravelMonth)
	assert.Equal(t, "Hokkaido, Japan", st.Destination)

	res := d.Dispatch(ToolFillTravelDetails, map[string]any{"month": "July"})
	assert.Contains(t, res, "error")
}

func TestFillTransferAndBill(t *testing.T) {
	s, d := newTestDispatcher()

	d.Dispatch(ToolFillTransferDetails, map[string]any{"payee": "Mum", "amount": 800.0, "toCurrency": "jpy"})
	d.Dispatch(ToolFillBillDetails, map[string]any{"merchant": "HK Electric", "amount": 450.0})

	st := s.Snapshot()
	assert.Equal(t, "Mum", st.TransferPayee)
	assert.Equal(t, 800.0, st.TransferAmount)
	assert.Equal(t, "HKD", st.TransferFromCurrency)
	assert.Equal(t, "JPY", st.TransferToCurrency)
	assert.Equal(t, "HK Electric", st.BillMerchant)
	assert.Equal(t, 450.0, st.BillAmount)

	res := d.Dispatch(ToolFillBillDetails, map[string]any{"amount": "450"})
	assert.Equal(t, Result{"error": "amount must be a number"}, res)
}

func TestDispatch_UnknownTool(t *testing.T) {
	_, d := newTestDispatcher()
	assert.Equal(t, Result{"error": "unknown tool: transferAll"}, d.Dispatch("transferAll", nil))
}

func TestDeclarations_CoverTable(t *testing.T) {
	decls := Declarations()
	require.Len(t, decls, len(table))
	for _, decl := range decls {
		_, ok := table[decl.Name]
		assert.True(t, ok, decl.Name)
		require.NotNil(t, decl.Parameters)
	}
}
