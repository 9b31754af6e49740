package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/discount"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed status changes besides self-transitions.
var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusCancelled},
	StatusCancelled: {StatusPending},
	StatusCompleted: nil,
}

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", apperr.Validation("unknown order status %q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is the aggregate root for one customer transaction.
//
// FinalAmount always equals TotalAmount minus DiscountAmount, and TotalAmount
// always equals the sum of the order's item totals.
type Order struct {
	ID             string
	TableNumber    *int
	Status         Status
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	CashierID      *string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is a line item. Name and unit price are snapshots taken at order time.
type Item struct {
	ID        string
	OrderID   string
	ItemID    string
	ItemName  string
	UnitPrice decimal.Decimal
	Quantity  int
	ItemTotal decimal.Decimal
	Notes     string
}

// AppliedDiscount records a discount deducted from an order. AppliedValue is
// a snapshot independent of later edits to the discount definition.
type AppliedDiscount struct {
	OrderID      string
	DiscountID   string
	AppliedValue decimal.Decimal
	AppliedBy    *string
	AppliedAt    time.Time
}

// Detail is the read-side composition of an order.
type Detail struct {
	Order
	Items      []Item
	Discounts  []AppliedDiscount
	PaidAmount decimal.Decimal
}

// ListFilter narrows order listings. Zero values mean "any".
type ListFilter struct {
	Status    Status
	CashierID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Locker locks an order row for the rest of the transaction.
type Locker interface {
	// LockOrder reads the order with a row lock. It returns an
	// apperr.ErrNotFound error when the order does not exist.
	LockOrder(ctx context.Context, id string) (*Order, error)
}

// StatusWriter persists a status change.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// Tx is the set of writes the order aggregate performs inside one
// transaction.
type Tx interface {
	Locker
	StatusWriter

	InsertOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error
	DeleteOrder(ctx context.Context, id string) error

	ListItems(ctx context.Context, orderID string) ([]Item, error)
	InsertItems(ctx context.Context, items []Item) error
	DeleteItems(ctx context.Context, orderID string) error

	FindDiscount(ctx context.Context, id string) (*discount.Discount, error)
	InsertDiscount(ctx context.Context, d AppliedDiscount) error
	DeleteDiscounts(ctx context.Context, orderID string) error

	DeletePayments(ctx context.Context, orderID string) error
}

// Store runs order transactions and serves reads.
type Store interface {
	// InTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Get(ctx context.Context, id string) (*Detail, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
}

// CompleteIfPaid moves a pending order to completed when paid covers its
// final amount. It must run under the order's row lock. Orders in any other
// status are left alone, so payment never downgrades a status.
func CompleteIfPaid(ctx context.Context, tx StatusWriter, o *Order, paid decimal.Decimal) (bool, error) {
	if o.Status != StatusPending || paid.LessThan(o.FinalAmount) {
		return false, nil
	}
	if err := tx.UpdateStatus(ctx, o.ID, StatusCompleted); err != nil {
		return false, err
	}
	o.Status = StatusCompleted
	return true, nil
}
