package bank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() (*Store, *Ledger) {
	s := NewStore(InitialState())
	l := NewLedger(s)
	l.now = func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	return s, l
}

func TestExecuteTransfer(t *testing.T) {
	s, l := newTestLedger()
	s.Dispatch(SetTransferDetails{Amount: ptr(500.0), Payee: ptr("Alex Chen"), ToCurrency: "USD"})

	r, err := l.ExecuteTransfer()
	require.NoError(t, err)

	assert.Equal(t, "[TRANSACTION] Type: Transfer | From: HKD | Amount: 500 | To: Alex Chen (USD)", r.Notice)
	assert.Equal(t, "To Alex Chen", r.Transaction.Description)
	assert.Equal(t, "2024-01-15", r.Transaction.Date)
	acc, _ := r.State.Account("HKD")
	assert.Equal(t, 244500.0, acc.Balance)
	require.Len(t, r.State.Transactions, 3)
	assert.Equal(t, r.Transaction.ID, r.State.Transactions[0].ID)
}

func TestExecuteTransfer_InsufficientFunds(t *testing.T) {
	s, l := newTestLedger()
	s.Dispatch(SetTransferDetails{Amount: ptr(5000.0), FromCurrency: "USD"})

	_, err := l.ExecuteTransfer()
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	st := s.Snapshot()
	acc, _ := st.Account("USD")
	assert.Equal(t, 1200.0, acc.Balance)
	assert.Len(t, st.Transactions, 2)
}

func TestExecuteTransfer_ZeroAmount(t *testing.T) {
	_, l := newTestLedger()
	_, err := l.ExecuteTransfer()
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPayBill(t *testing.T) {
	s, l := newTestLedger()
	s.Dispatch(SetBillDetails{Merchant: ptr("CLP Power"), Amount: ptr(320.5)})

	r, err := l.PayBill()
	require.NoError(t, err)
	assert.Equal(t, "[TRANSACTION] Type: Bill Payment | Merchant: CLP Power | Amount: HKD 320.5", r.Notice)
	acc, _ := r.State.Account("HKD")
	assert.InDelta(t, 244679.5, acc.Balance, 1e-9)
}

func TestExchangeFX(t *testing.T) {
	s, l := newTestLedger()
	s.Dispatch(SetFXDetails{BuyCurrency: "JPY", Amount: 1000})

	r, err := l.ExchangeFX()
	require.NoError(t, err)

	assert.Equal(t, "[TRANSACTION] Type: FX | Sold: HKD 1000.00 | Bought: JPY 19450.00 | Rate: 19.45", r.Notice)
	hkd, _ := r.State.Account("HKD")
	jpy, _ := r.State.Account("JPY")
	assert.Equal(t, 244000.0, hkd.Balance)
	assert.InDelta(t, 19450.0, jpy.Balance, 1e-6)
	assert.Equal(t, TxFXExchange, r.Transaction.Type)
}

func TestExchangeFX_UnknownBuyAccount(t *testing.T) {
	s, l := newTestLedger()
	s.Dispatch(SetFXDetails{BuyCurrency: "EUR", Amount: 100})

	_, err := l.ExchangeFX()
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestBuyTravelInsurance(t *testing.T) {
	s, l := newTestLedger()
	s.Dispatch(
		SetTravelDetails{Destination: ptr("Japan")},
		SetInsuranceAddon{Addon: AddonWinterSports, Active: true},
		SetInsuranceAddon{Addon: AddonCarRental, Active: true},
	)

	r, err := l.BuyTravelInsurance()
	require.NoError(t, err)
	assert.Equal(t, 370.0, r.Transaction.Amount)
	assert.Equal(t, "Travel Insurance (Japan)", r.Transaction.Description)
	assert.Equal(t, "[TRANSACTION] Type: Travel Insurance | Destination: Japan | Addons: winter-sports, car-rental | Premium: HKD 370", r.Notice)
}

func TestBuyTravelInsurance_NoAddons(t *testing.T) {
	_, l := newTestLedger()

	r, err := l.BuyTravelInsurance()
	require.NoError(t, err)
	assert.Equal(t, 240.0, r.Transaction.Amount)
	assert.Contains(t, r.Notice, "Addons: None")
	assert.Equal(t, "Travel Insurance (Single Trip)", r.Transaction.Description)
}

func TestLockOffer(t *testing.T) {
	_, l := newTestLedger()
	st := l.LockOffer()
	assert.True(t, st.OfferLocked)
	assert.True(t, st.HaruActive)
	assert.Equal(t, "Offer saved! I've locked this rate for 7 days.", st.HaruMessage)
}

func TestLoanQuoteAndDTI(t *testing.T) {
	st := InitialState()
	q := st.LoanQuote()
	assert.Equal(t, 8750.0, q.MonthlyPayment)
	assert.False(t, q.HighRisk)

	_, ok := st.DTI()
	assert.False(t, ok)

	st.Salary = 20000
	st.MonthlyDebt = 5000
	dti, ok := st.DTI()
	require.True(t, ok)
	assert.InDelta(t, (5000+100000.0/12)/20000, dti, 1e-9)

	q = st.LoanQuote()
	assert.InDelta(t, (5000+8750.0)/20000, q.DTI, 1e-9)
	assert.True(t, q.HighRisk)
}

func TestRate(t *testing.T) {
	assert.Equal(t, 19.45, Rate("JPY"))
	assert.Equal(t, 0.13, Rate("usd"))
	assert.Equal(t, 1.0, Rate("GBP"))
}
