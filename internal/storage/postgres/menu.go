package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/posledger/internal/domain/menu"
)

const (
	resolveMenuItemsSQL = `SELECT id, name, price, category, available
	FROM menu_items WHERE id = ANY($1)`

	upsertMenuItemSQL = `INSERT INTO menu_items (id, name, price, category, available, updated_at)
	VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
	category = EXCLUDED.category, available = EXCLUDED.available, updated_at = now()`

	listMenuItemIDsSQL = `SELECT id FROM menu_items ORDER BY id`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// ResolveItems looks up all ids in one query.
func (r *MenuRepository) ResolveItems(ctx context.Context, ids []string) (map[string]menu.Item, error) {
	rows, err := r.pool.Query(ctx, resolveMenuItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving menu items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (menu.Item, error) {
		var it menu.Item
		err := row.Scan(&it.ID, &it.Name, &it.Price, &it.Category, &it.Available)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning menu items: %w", err)
	}

	out := make(map[string]menu.Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (r *MenuRepository) Upsert(ctx context.Context, item menu.Item) error {
	_, err := r.pool.Exec(ctx, upsertMenuItemSQL, item.ID, item.Name, item.Price, item.Category, item.Available)
	if err != nil {
		return fmt.Errorf("upserting menu item %q: %w", item.ID, err)
	}
	return nil
}

// ListIDs returns every menu item id.
func (r *MenuRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listMenuItemIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing menu item ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning menu item ids: %w", err)
	}
	return ids, nil
}
