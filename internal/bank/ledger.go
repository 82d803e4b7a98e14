package bank

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrUnknownAccount    = errors.New("no account in that currency")
)

const (
	insuranceBasePremium = 240
	offerLockedMessage   = "Offer saved! I've locked this rate for 7 days."
)

var addonPremiums = map[string]float64{
	AddonWinterSports: 80,
	AddonCarRental:    50,
}

// Receipt is the outcome of a screen-level ledger operation. Notice is the
// line the assistant is told about, as a user turn.
type Receipt struct {
	Transaction Transaction `json:"transaction"`
	Notice      string      `json:"notice"`
	State       State       `json:"-"`
}

// Ledger runs the confirm buttons of the banking screens against a Store.
// Each operation reads the current form fields and commits balance and
// history updates in one transaction.
type Ledger struct {
	store *Store
	now   func() time.Time
}

func NewLedger(store *Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

func (l *Ledger) newTx(typ TransactionType, desc string, amount float64, currency string) Transaction {
	return Transaction{
		ID:          uuid.NewString(),
		Type:        typ,
		Description: desc,
		Amount:      amount,
		Currency:    currency,
		Date:        l.now().Format("2006-01-02"),
		Direction:   DirectionOut,
	}
}

func debit(s State, currency string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	acc, ok := s.Account(currency)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, currency)
	}
	if amount > acc.Balance {
		return fmt.Errorf("%w: %s balance %.2f, need %.2f", ErrInsufficientFunds, currency, acc.Balance, amount)
	}
	return nil
}

func (l *Ledger) ExecuteTransfer() (Receipt, error) {
	var r Receipt
	st, err := l.store.Transact(func(s State) ([]Action, error) {
		from := s.TransferFromCurrency
		if err := debit(s, from, s.TransferAmount); err != nil {
			return nil, err
		}
		payee := s.TransferPayee
		if payee == "" {
			payee = "Friend"
		}
		r.Transaction = l.newTx(TxTransfer, "To "+payee, s.TransferAmount, from)
		r.Notice = fmt.Sprintf("[TRANSACTION] Type: Transfer | From: %s | Amount: %s | To: %s (%s)",
			from, formatAmount(s.TransferAmount), s.TransferPayee, s.TransferToCurrency)
		return []Action{
			ExecuteTransaction{Tx: r.Transaction},
			UpdateBalance{Currency: from, Delta: -s.TransferAmount},
		}, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	r.State = st
	return r, nil
}

func (l *Ledger) PayBill() (Receipt, error) {
	var r Receipt
	st, err := l.store.Transact(func(s State) ([]Action, error) {
		if strings.TrimSpace(s.BillMerchant) == "" {
			return nil, errors.New("no merchant selected")
		}
		if err := debit(s, HomeCurrency, s.BillAmount); err != nil {
			return nil, err
		}
		r.Transaction = l.newTx(TxBillPayment, s.BillMerchant, s.BillAmount, HomeCurrency)
		r.Notice = fmt.Sprintf("[TRANSACTION] Type: Bill Payment | Merchant: %s | Amount: HKD %s",
			s.BillMerchant, formatAmount(s.BillAmount))
		return []Action{
			ExecuteTransaction{Tx: r.Transaction},
			UpdateBalance{Currency: HomeCurrency, Delta: -s.BillAmount},
		}, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	r.State = st
	return r, nil
}

// ExchangeFX sells FXAmount of the home currency for FXBuyCurrency at the
// static rate.
func (l *Ledger) ExchangeFX() (Receipt, error) {
	var r Receipt
	st, err := l.store.Transact(func(s State) ([]Action, error) {
		if err := debit(s, HomeCurrency, s.FXAmount); err != nil {
			return nil, err
		}
		q := s.FXQuote()
		if _, ok := s.Account(q.BuyCurrency); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, q.BuyCurrency)
		}
		r.Transaction = l.newTx(TxFXExchange, "Bought "+q.BuyCurrency, q.SellAmount, HomeCurrency)
		r.Notice = fmt.Sprintf("[TRANSACTION] Type: FX | Sold: HKD %.2f | Bought: %s %.2f | Rate: %s",
			q.SellAmount, q.BuyCurrency, q.BuyAmount, formatAmount(q.Rate))
		return []Action{
			UpdateBalance{Currency: HomeCurrency, Delta: -q.SellAmount},
			UpdateBalance{Currency: q.BuyCurrency, Delta: q.BuyAmount},
			ExecuteTransaction{Tx: r.Transaction},
		}, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	r.State = st
	return r, nil
}

// InsurancePremium is the base premium plus every selected add-on.
func InsurancePremium(addons []string) float64 {
	total := float64(insuranceBasePremium)
	for _, a := range addons {
		total += addonPremiums[a]
	}
	return total
}

func (l *Ledger) BuyTravelInsurance() (Receipt, error) {
	var r Receipt
	st, err := l.store.Transact(func(s State) ([]Action, error) {
		premium := InsurancePremium(s.InsuranceAddons)
		if err := debit(s, HomeCurrency, premium); err != nil {
			return nil, err
		}
		dest := s.Destination
		if dest == "" {
			dest = "Single Trip"
		}
		addons := strings.Join(s.InsuranceAddons, ", ")
		if addons == "" {
			addons = "None"
		}
		r.Transaction = l.newTx(TxBillPayment, "Travel Insurance ("+dest+")", premium, HomeCurrency)
		r.Notice = fmt.Sprintf("[TRANSACTION] Type: Travel Insurance | Destination: %s | Addons: %s | Premium: HKD %s",
			s.Destination, addons, formatAmount(premium))
		return []Action{
			UpdateBalance{Currency: HomeCurrency, Delta: -premium},
			ExecuteTransaction{Tx: r.Transaction},
		}, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	r.State = st
	return r, nil
}

// LockOffer saves the current loan quote for seven days.
func (l *Ledger) LockOffer() State {
	return l.store.Dispatch(
		SetOfferLocked{Locked: true},
		SetHaruState{Active: true, Message: offerLockedMessage},
	)
}

// formatAmount prints whole numbers without decimals, like the screens do.
func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
