package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/payment"
)

const paymentColumns = `id, order_id, amount, payment_method, transaction_ref, cashier_id, notes, paid_at`

const insertPaymentSQL = `INSERT INTO payments (` + paymentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

var (
	_ payment.Store = (*PaymentStore)(nil)
	_ payment.Tx    = (*Tx)(nil)
)

func (t *Tx) InsertPayment(ctx context.Context, p *payment.Payment) error {
	_, err := t.tx.Exec(ctx, insertPaymentSQL,
		p.ID, p.OrderID, p.Amount, p.Method, p.TransactionRef, p.CashierID, p.Notes, p.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment for order %q: %w", p.OrderID, err)
	}
	return nil
}

// SumPayments sums the order's payments, including ones inserted earlier in
// this transaction.
func (t *Tx) SumPayments(ctx context.Context, orderID string) (decimal.Decimal, error) {
	return sumPayments(ctx, t.tx, orderID)
}

// PaymentStore implements payment.Store.
type PaymentStore struct {
	db *DB
}

// NewPaymentStore returns a PaymentStore backed by db.
func NewPaymentStore(db *DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (s *PaymentStore) InTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
	return s.db.InTx(ctx, "payment", func(ctx context.Context, tx *Tx) error {
		return fn(ctx, tx)
	})
}

// List returns payments newest first.
func (s *PaymentStore) List(ctx context.Context, pf payment.Filter) ([]payment.Payment, error) {
	var f filter
	if pf.OrderID != "" {
		f.add("order_id = $%d", pf.OrderID)
	}
	if pf.CashierID != "" {
		f.add("cashier_id = $%d", pf.CashierID)
	}
	if pf.Method != "" {
		f.add("payment_method = $%d", pf.Method)
	}
	if pf.From != nil {
		f.add("paid_at >= $%d", *pf.From)
	}
	if pf.To != nil {
		f.add("paid_at < $%d", *pf.To)
	}
	sql := `SELECT ` + paymentColumns + ` FROM payments` + f.where() +
		` ORDER BY paid_at DESC, id` + f.page(pf.Limit, pf.Offset)

	rows, err := s.db.pool.Query(ctx, sql, f.args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (payment.Payment, error) {
		var p payment.Payment
		err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method,
			&p.TransactionRef, &p.CashierID, &p.Notes, &p.PaidAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning payments: %w", err)
	}
	return payments, nil
}
