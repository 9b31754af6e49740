package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/discount"
)

const discountColumns = `id, name, type, value, active, valid_from, valid_until, min_amount`

const (
	// FOR SHARE keeps the definition stable while an order applies it.
	shareDiscountSQL = `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1 FOR SHARE`

	upsertDiscountSQL = `INSERT INTO discounts (` + discountColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type,
	value = EXCLUDED.value, active = EXCLUDED.active, valid_from = EXCLUDED.valid_from,
	valid_until = EXCLUDED.valid_until, min_amount = EXCLUDED.min_amount`
)

// FindDiscount implements order.Tx.
func (t *Tx) FindDiscount(ctx context.Context, id string) (*discount.Discount, error) {
	var d discount.Discount
	err := t.tx.QueryRow(ctx, shareDiscountSQL, id).Scan(
		&d.ID, &d.Name, &d.Type, &d.Value, &d.Active, &d.ValidFrom, &d.ValidUntil, &d.MinAmount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("discount", id)
		}
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}
	return &d, nil
}

// DiscountRepository seeds discount definitions.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// Upsert creates or replaces a discount definition.
func (r *DiscountRepository) Upsert(ctx context.Context, d discount.Discount) error {
	_, err := r.pool.Exec(ctx, upsertDiscountSQL,
		d.ID, d.Name, d.Type, d.Value, d.Active, d.ValidFrom, d.ValidUntil, d.MinAmount,
	)
	if err != nil {
		return fmt.Errorf("upserting discount %q: %w", d.ID, err)
	}
	return nil
}
