// Package shift implements the cashier shift cash ledger: the shift
// lifecycle, running sales totals and cash reconciliation arithmetic.
package shift

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Shift is a cashier's cash-drawer session. A user has at most one active
// shift (End == nil) at any time.
type Shift struct {
	ID          string
	UserID      string
	Start       time.Time
	End         *time.Time
	OpeningCash decimal.Decimal
	ClosingCash *decimal.Decimal
	SalesCash   decimal.Decimal
	SalesCard   decimal.Decimal
	CashIn      decimal.Decimal
	CashOut     decimal.Decimal
	Reconciled  bool
	Notes       string
}

// Active reports whether the shift has not been ended.
func (s *Shift) Active() bool { return s.End == nil }

// ExpectedCashBalance returns opening cash plus cash sales and cash-in, minus
// cash-out, rounded to the currency minor unit.
func ExpectedCashBalance(s *Shift) decimal.Decimal {
	return s.OpeningCash.
		Add(s.SalesCash).
		Add(s.CashIn).
		Sub(s.CashOut).
		Round(2)
}

// Discrepancy returns counted closing cash minus the expected balance, or
// nil while no closing count exists.
func Discrepancy(s *Shift) *decimal.Decimal {
	if s.ClosingCash == nil {
		return nil
	}
	d := s.ClosingCash.Sub(ExpectedCashBalance(s)).Round(2)
	return &d
}

// Summary is a shift together with its derived reconciliation figures.
type Summary struct {
	Shift
	ExpectedCash decimal.Decimal
	Discrepancy  *decimal.Decimal
}

// Summarize computes the reconciliation figures for s.
func Summarize(s *Shift) Summary {
	return Summary{
		Shift:        *s,
		ExpectedCash: ExpectedCashBalance(s),
		Discrepancy:  Discrepancy(s),
	}
}

// Channel selects which running sales total a payment feeds.
type Channel string

const (
	ChannelCash Channel = "cash"
	ChannelCard Channel = "card"
)

// Adjustment is a supervisor correction. Nil fields keep their stored value.
type Adjustment struct {
	OpeningCash *decimal.Decimal
	ClosingCash *decimal.Decimal
	CashIn      *decimal.Decimal
	CashOut     *decimal.Decimal
	SalesCash   *decimal.Decimal
	SalesCard   *decimal.Decimal
	Reconciled  *bool
	Notes       *string
}

// Filter narrows shift listings. Zero values mean "any".
type Filter struct {
	UserID     string
	ActiveOnly bool
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// SalesTx is the part of a transaction the payment ledger uses to feed a
// shift's running totals.
type SalesTx interface {
	// LockActiveShift reads the user's active shift with a row lock. It
	// returns an apperr.ErrNotFound error when the user has no active shift.
	LockActiveShift(ctx context.Context, userID string) (*Shift, error)
	UpdateSales(ctx context.Context, id string, cash, card decimal.Decimal) error
}

// Tx is the set of writes the shift ledger performs inside one transaction.
type Tx interface {
	SalesTx

	InsertShift(ctx context.Context, s *Shift) error
	// LockShift reads a shift by id with a row lock. It returns an
	// apperr.ErrNotFound error when the shift does not exist.
	LockShift(ctx context.Context, id string) (*Shift, error)
	UpdateShift(ctx context.Context, s *Shift) error
}

// Store runs shift transactions and serves reads.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Get(ctx context.Context, id string) (*Shift, error)
	Active(ctx context.Context, userID string) (*Shift, error)
	List(ctx context.Context, f Filter) ([]Shift, error)
}
