package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/shift"
)

const shiftColumns = `id, user_id, shift_start, shift_end, opening_cash, closing_cash,
	sales_amount_cash, sales_amount_card, cash_in, cash_out, reconciled, notes`

const (
	getShiftSQL  = `SELECT ` + shiftColumns + ` FROM cashier_shifts WHERE id = $1`
	lockShiftSQL = getShiftSQL + ` FOR UPDATE`

	activeShiftSQL     = `SELECT ` + shiftColumns + ` FROM cashier_shifts WHERE user_id = $1 AND shift_end IS NULL`
	lockActiveShiftSQL = activeShiftSQL + ` FOR UPDATE`

	insertShiftSQL = `INSERT INTO cashier_shifts (` + shiftColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateShiftSQL = `UPDATE cashier_shifts SET shift_end = $2, opening_cash = $3,
	closing_cash = $4, sales_amount_cash = $5, sales_amount_card = $6, cash_in = $7,
	cash_out = $8, reconciled = $9, notes = $10
	WHERE id = $1`

	updateShiftSalesSQL = `UPDATE cashier_shifts SET sales_amount_cash = $2, sales_amount_card = $3
	WHERE id = $1`
)

var (
	_ shift.Store = (*ShiftStore)(nil)
	_ shift.Tx    = (*Tx)(nil)
)

func scanShift(row pgx.Row) (*shift.Shift, error) {
	var s shift.Shift
	err := row.Scan(
		&s.ID, &s.UserID, &s.Start, &s.End, &s.OpeningCash, &s.ClosingCash,
		&s.SalesCash, &s.SalesCard, &s.CashIn, &s.CashOut, &s.Reconciled, &s.Notes,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func getShift(ctx context.Context, q querier, sql, key, entity string) (*shift.Shift, error) {
	s, err := scanShift(q.QueryRow(ctx, sql, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(entity, key)
		}
		return nil, fmt.Errorf("getting %s %q: %w", entity, key, err)
	}
	return s, nil
}

// LockActiveShift implements shift.SalesTx.
func (t *Tx) LockActiveShift(ctx context.Context, userID string) (*shift.Shift, error) {
	return getShift(ctx, t.tx, lockActiveShiftSQL, userID, "active shift for user")
}

func (t *Tx) UpdateSales(ctx context.Context, id string, cash, card decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, updateShiftSalesSQL, id, cash, card)
	if err != nil {
		return fmt.Errorf("updating sales of shift %q: %w", id, err)
	}
	return exactlyOne(tag, "update shift sales", id)
}

// InsertShift maps a collision on the one-active-shift index to
// shift.ErrActiveShiftExists.
func (t *Tx) InsertShift(ctx context.Context, s *shift.Shift) error {
	_, err := t.tx.Exec(ctx, insertShiftSQL,
		s.ID, s.UserID, s.Start, s.End, s.OpeningCash, s.ClosingCash,
		s.SalesCash, s.SalesCard, s.CashIn, s.CashOut, s.Reconciled, s.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shift.ErrActiveShiftExists
		}
		return fmt.Errorf("creating shift for user %q: %w", s.UserID, err)
	}
	return nil
}

func (t *Tx) LockShift(ctx context.Context, id string) (*shift.Shift, error) {
	return getShift(ctx, t.tx, lockShiftSQL, id, "shift")
}

func (t *Tx) UpdateShift(ctx context.Context, s *shift.Shift) error {
	tag, err := t.tx.Exec(ctx, updateShiftSQL,
		s.ID, s.End, s.OpeningCash, s.ClosingCash, s.SalesCash, s.SalesCard,
		s.CashIn, s.CashOut, s.Reconciled, s.Notes,
	)
	if err != nil {
		return fmt.Errorf("updating shift %q: %w", s.ID, err)
	}
	return exactlyOne(tag, "update shift", s.ID)
}

// ShiftStore implements shift.Store.
type ShiftStore struct {
	db *DB
}

// NewShiftStore returns a ShiftStore backed by db.
func NewShiftStore(db *DB) *ShiftStore {
	return &ShiftStore{db: db}
}

func (s *ShiftStore) InTx(ctx context.Context, fn func(ctx context.Context, tx shift.Tx) error) error {
	return s.db.InTx(ctx, "shift", func(ctx context.Context, tx *Tx) error {
		return fn(ctx, tx)
	})
}

func (s *ShiftStore) Get(ctx context.Context, id string) (*shift.Shift, error) {
	return getShift(ctx, s.db.pool, getShiftSQL, id, "shift")
}

func (s *ShiftStore) Active(ctx context.Context, userID string) (*shift.Shift, error) {
	return getShift(ctx, s.db.pool, activeShiftSQL, userID, "active shift for user")
}

// List returns shifts newest first.
func (s *ShiftStore) List(ctx context.Context, sf shift.Filter) ([]shift.Shift, error) {
	var f filter
	if sf.UserID != "" {
		f.add("user_id = $%d", sf.UserID)
	}
	if sf.ActiveOnly {
		f.clauses = append(f.clauses, "shift_end IS NULL")
	}
	if sf.From != nil {
		f.add("shift_start >= $%d", *sf.From)
	}
	if sf.To != nil {
		f.add("shift_start < $%d", *sf.To)
	}
	sql := `SELECT ` + shiftColumns + ` FROM cashier_shifts` + f.where() +
		` ORDER BY shift_start DESC, id` + f.page(sf.Limit, sf.Offset)

	rows, err := s.db.pool.Query(ctx, sql, f.args...)
	if err != nil {
		return nil, fmt.Errorf("listing shifts: %w", err)
	}
	shifts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shift.Shift, error) {
		sh, err := scanShift(row)
		if err != nil {
			return shift.Shift{}, err
		}
		return *sh, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning shifts: %w", err)
	}
	return shifts, nil
}
