// Package payment implements the payment ledger. Recording a payment feeds
// the cashier's active shift and settles the order once it is fully paid.
package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/order"
	"github.com/xenking/posledger/internal/domain/shift"
)

// Method is how a payment was tendered.
type Method string

const (
	MethodCash Method = "cash"
	MethodCard Method = "card"
)

// ParseMethod validates s as a Method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodCash, MethodCard:
		return m, nil
	}
	return "", apperr.Validation("unknown payment method %q", s)
}

// Channel maps the method onto the shift sales total it feeds.
func (m Method) Channel() shift.Channel {
	if m == MethodCard {
		return shift.ChannelCard
	}
	return shift.ChannelCash
}

// Payment is an append-only record of money received against an order.
type Payment struct {
	ID             string
	OrderID        string
	Amount         decimal.Decimal
	Method         Method
	TransactionRef *string
	CashierID      *string
	Notes          string
	PaidAt         time.Time
}

// Filter narrows payment listings. Zero values mean "any".
type Filter struct {
	OrderID   string
	CashierID string
	Method    Method
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Tx is the set of reads and writes the ledger performs inside one
// transaction.
type Tx interface {
	order.Locker
	order.StatusWriter
	shift.SalesTx

	InsertPayment(ctx context.Context, p *Payment) error
	SumPayments(ctx context.Context, orderID string) (decimal.Decimal, error)
}

// Store runs payment transactions and serves reads.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	List(ctx context.Context, f Filter) ([]Payment, error)
}
