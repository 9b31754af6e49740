package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/page"
	"github.com/xenking/posledger/internal/domain/order"
	"github.com/xenking/posledger/internal/domain/shift"
)

// RecordRequest holds the input for recording a payment.
type RecordRequest struct {
	OrderID        string
	Method         Method
	Amount         decimal.Decimal
	TransactionRef *string
	CashierID      *string
	Notes          string
}

// Receipt is the outcome of a recorded payment.
type Receipt struct {
	Payment Payment
	// ShiftID is the shift whose sales total was incremented, nil when the
	// cashier had no active shift.
	ShiftID     *string
	PaidTotal   decimal.Decimal
	OrderStatus order.Status
	// Completed reports whether this payment settled the order.
	Completed bool
}

// Ledger records payments.
type Ledger struct {
	store Store
	now   func() time.Time
	newID func() string

	payments  metric.Int64Counter
	completed metric.Int64Counter
}

// NewLedger creates a payment Ledger reporting to meter.
func NewLedger(store Store, meter metric.Meter) (*Ledger, error) {
	payments, err := meter.Int64Counter("posledger.payments.recorded",
		metric.WithDescription("Payments recorded, by method"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "payments counter")
	}
	completed, err := meter.Int64Counter("posledger.orders.completed",
		metric.WithDescription("Orders settled by a payment"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "completed counter")
	}
	return &Ledger{
		store:     store,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		payments:  payments,
		completed: completed,
	}, nil
}

// Record inserts a payment, feeds the cashier's active shift and settles the
// order when the cumulative paid amount covers its final amount. All of it
// happens in one transaction under the order's row lock.
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (*Receipt, error) {
	if req.OrderID == "" {
		return nil, apperr.Validation("order id required")
	}
	if _, err := ParseMethod(string(req.Method)); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("amount must be greater than 0")
	}

	p := &Payment{
		ID:             l.newID(),
		OrderID:        req.OrderID,
		Amount:         req.Amount.Round(2),
		Method:         req.Method,
		TransactionRef: req.TransactionRef,
		CashierID:      req.CashierID,
		Notes:          strings.TrimSpace(req.Notes),
		PaidAt:         l.now().UTC(),
	}
	if p.Amount.IsZero() {
		return nil, apperr.Validation("amount rounds to zero")
	}

	r := &Receipt{}
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if o.Status == order.StatusCancelled {
			return apperr.Conflict("order %s is cancelled", o.ID)
		}

		if err := tx.InsertPayment(ctx, p); err != nil {
			return errors.Wrap(err, "insert payment")
		}

		if p.CashierID != nil {
			s, err := shift.RecordSale(ctx, tx, *p.CashierID, p.Method.Channel(), p.Amount)
			if err != nil {
				return err
			}
			if s != nil {
				r.ShiftID = &s.ID
			}
		}

		paid, err := tx.SumPayments(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "sum payments")
		}
		completed, err := order.CompleteIfPaid(ctx, tx, o, paid)
		if err != nil {
			return errors.Wrap(err, "complete order")
		}

		r.PaidTotal = paid
		r.OrderStatus = o.Status
		r.Completed = completed
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "record payment")
	}
	r.Payment = *p

	l.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(p.Method))))
	lg := zctx.From(ctx).With(
		zap.String("payment_id", p.ID),
		zap.String("order_id", p.OrderID),
		zap.Stringer("amount", p.Amount),
	)
	if r.ShiftID == nil && p.CashierID != nil {
		lg.Info("No active shift for cashier, sales not attributed", zap.String("cashier_id", *p.CashierID))
	}
	if r.Completed {
		l.completed.Add(ctx, 1)
		lg.Info("Order completed", zap.Stringer("paid", r.PaidTotal))
	} else {
		lg.Info("Payment recorded", zap.Stringer("paid", r.PaidTotal))
	}
	return r, nil
}

// List returns payments newest first.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Payment, error) {
	if f.Method != "" {
		if _, err := ParseMethod(string(f.Method)); err != nil {
			return nil, err
		}
	}
	f.Limit, f.Offset = page.Clamp(f.Limit, f.Offset)
	return l.store.List(ctx, f)
}

// ListForOrder returns all payments of one order newest first, unpaged.
func (l *Ledger) ListForOrder(ctx context.Context, orderID string) ([]Payment, error) {
	if orderID == "" {
		return nil, apperr.Validation("order id required")
	}
	return l.store.List(ctx, Filter{OrderID: orderID})
}
