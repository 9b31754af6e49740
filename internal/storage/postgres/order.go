package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/order"
)

const orderColumns = `id, table_number, status, total_amount, discount_amount,
	final_amount, cashier_id, notes, created_at, updated_at`

const (
	getOrderSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateOrderSQL = `UPDATE orders SET table_number = $2, total_amount = $3,
	discount_amount = $4, final_amount = $5, notes = $6, updated_at = $7
	WHERE id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`
	deleteOrderSQL       = `DELETE FROM orders WHERE id = $1`

	listItemsSQL = `SELECT id, order_id, item_id, item_name, unit_price, quantity, item_total, notes
	FROM order_items WHERE order_id = $1 ORDER BY position`
	insertItemSQL = `INSERT INTO order_items
	(id, order_id, item_id, item_name, unit_price, quantity, item_total, notes, position)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	deleteItemsSQL = `DELETE FROM order_items WHERE order_id = $1`

	listOrderDiscountsSQL = `SELECT order_id, discount_id, applied_value, applied_by, applied_at
	FROM order_discounts WHERE order_id = $1`
	insertOrderDiscountSQL = `INSERT INTO order_discounts
	(order_id, discount_id, applied_value, applied_by, applied_at)
	VALUES ($1, $2, $3, $4, $5)`
	deleteOrderDiscountsSQL = `DELETE FROM order_discounts WHERE order_id = $1`

	sumPaymentsSQL    = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE order_id = $1`
	deletePaymentsSQL = `DELETE FROM payments WHERE order_id = $1`
)

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = (*Tx)(nil)
)

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o     order.Order
		table *int32
	)
	err := row.Scan(
		&o.ID, &table, &o.Status, &o.TotalAmount, &o.DiscountAmount,
		&o.FinalAmount, &o.CashierID, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if table != nil {
		n := int(*table)
		o.TableNumber = &n
	}
	return &o, nil
}

func getOrder(ctx context.Context, q querier, sql, id string) (*order.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order", id)
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

func listItems(ctx context.Context, q querier, orderID string) ([]order.Item, error) {
	rows, err := q.Query(ctx, listItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", orderID, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.ItemName,
			&it.UnitPrice, &it.Quantity, &it.ItemTotal, &it.Notes)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning items of order %q: %w", orderID, err)
	}
	return items, nil
}

func listOrderDiscounts(ctx context.Context, q querier, orderID string) ([]order.AppliedDiscount, error) {
	rows, err := q.Query(ctx, listOrderDiscountsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing discounts of order %q: %w", orderID, err)
	}
	ds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.AppliedDiscount, error) {
		var d order.AppliedDiscount
		err := row.Scan(&d.OrderID, &d.DiscountID, &d.AppliedValue, &d.AppliedBy, &d.AppliedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning discounts of order %q: %w", orderID, err)
	}
	return ds, nil
}

func sumPayments(ctx context.Context, q querier, orderID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := q.QueryRow(ctx, sumPaymentsSQL, orderID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("summing payments of order %q: %w", orderID, err)
	}
	return sum, nil
}

// exactlyOne turns an unexpected row count into a consistency error.
func exactlyOne(tag interface{ RowsAffected() int64 }, what, id string) error {
	if n := tag.RowsAffected(); n != 1 {
		return apperr.Consistency("%s %s: expected 1 row affected, got %d", what, id, n)
	}
	return nil
}

// LockOrder implements order.Locker.
func (t *Tx) LockOrder(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, t.tx, lockOrderSQL, id)
}

// UpdateStatus implements order.StatusWriter.
func (t *Tx) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := t.tx.Exec(ctx, updateOrderStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	return exactlyOne(tag, "update order status", id)
}

func (t *Tx) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, insertOrderSQL,
		o.ID, o.TableNumber, o.Status, o.TotalAmount, o.DiscountAmount,
		o.FinalAmount, o.CashierID, o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (t *Tx) UpdateOrder(ctx context.Context, o *order.Order) error {
	tag, err := t.tx.Exec(ctx, updateOrderSQL,
		o.ID, o.TableNumber, o.TotalAmount, o.DiscountAmount, o.FinalAmount, o.Notes, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	return exactlyOne(tag, "update order", o.ID)
}

func (t *Tx) DeleteOrder(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	return exactlyOne(tag, "delete order", id)
}

func (t *Tx) ListItems(ctx context.Context, orderID string) ([]order.Item, error) {
	return listItems(ctx, t.tx, orderID)
}

// InsertItems sends all item inserts in one batch round trip.
func (t *Tx) InsertItems(ctx context.Context, items []order.Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, it := range items {
		batch.Queue(insertItemSQL,
			it.ID, it.OrderID, it.ItemID, it.ItemName, it.UnitPrice,
			it.Quantity, it.ItemTotal, it.Notes, i,
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting order items: %w", err)
	}
	return nil
}

func (t *Tx) DeleteItems(ctx context.Context, orderID string) error {
	if _, err := t.tx.Exec(ctx, deleteItemsSQL, orderID); err != nil {
		return fmt.Errorf("deleting items of order %q: %w", orderID, err)
	}
	return nil
}

func (t *Tx) InsertDiscount(ctx context.Context, d order.AppliedDiscount) error {
	_, err := t.tx.Exec(ctx, insertOrderDiscountSQL,
		d.OrderID, d.DiscountID, d.AppliedValue, d.AppliedBy, d.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("applying discount %q to order %q: %w", d.DiscountID, d.OrderID, err)
	}
	return nil
}

func (t *Tx) DeleteDiscounts(ctx context.Context, orderID string) error {
	if _, err := t.tx.Exec(ctx, deleteOrderDiscountsSQL, orderID); err != nil {
		return fmt.Errorf("deleting discounts of order %q: %w", orderID, err)
	}
	return nil
}

func (t *Tx) DeletePayments(ctx context.Context, orderID string) error {
	if _, err := t.tx.Exec(ctx, deletePaymentsSQL, orderID); err != nil {
		return fmt.Errorf("deleting payments of order %q: %w", orderID, err)
	}
	return nil
}

// OrderStore implements order.Store.
type OrderStore struct {
	db *DB
}

// NewOrderStore returns an OrderStore backed by db.
func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return s.db.InTx(ctx, "order", func(ctx context.Context, tx *Tx) error {
		return fn(ctx, tx)
	})
}

// Get reads the order, its items, applied discounts and paid sum from one
// snapshot.
func (s *OrderStore) Get(ctx context.Context, id string) (*order.Detail, error) {
	var d order.Detail
	err := s.db.readTx(ctx, func(q querier) error {
		o, err := getOrder(ctx, q, getOrderSQL, id)
		if err != nil {
			return err
		}
		d.Order = *o
		if d.Items, err = listItems(ctx, q, id); err != nil {
			return err
		}
		if d.Discounts, err = listOrderDiscounts(ctx, q, id); err != nil {
			return err
		}
		d.PaidAmount, err = sumPayments(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *OrderStore) List(ctx context.Context, lf order.ListFilter) ([]order.Order, error) {
	var f filter
	if lf.Status != "" {
		f.add("status = $%d", lf.Status)
	}
	if lf.CashierID != "" {
		f.add("cashier_id = $%d", lf.CashierID)
	}
	if lf.From != nil {
		f.add("created_at >= $%d", *lf.From)
	}
	if lf.To != nil {
		f.add("created_at < $%d", *lf.To)
	}
	sql := `SELECT ` + orderColumns + ` FROM orders` + f.where() +
		` ORDER BY created_at DESC, id` + f.page(lf.Limit, lf.Offset)

	rows, err := s.db.pool.Query(ctx, sql, f.args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return order.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	return orders, nil
}
