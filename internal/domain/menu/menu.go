// Package menu describes the menu-lookup collaborator consumed by the order
// aggregate. Only name and price resolution is part of the sales core.
package menu

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/apperr"
)

// Item is a menu entry as seen at order time.
type Item struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Category  string
	Available bool
}

// ItemNotFoundError indicates a requested menu item does not exist.
type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item %s not found", e.ItemID)
}

// Is makes ItemNotFoundError match apperr.ErrNotFound.
func (e *ItemNotFoundError) Is(target error) bool {
	return target == apperr.ErrNotFound
}

// Resolver resolves menu items by identifier.
type Resolver interface {
	// ResolveItems returns the items for ids keyed by id. Missing ids are
	// absent from the map; callers decide how to report them.
	ResolveItems(ctx context.Context, ids []string) (map[string]Item, error)
}

// Repository is the write side used by the seed and import tools.
type Repository interface {
	Resolver
	Upsert(ctx context.Context, item Item) error
	ListIDs(ctx context.Context) ([]string, error)
}
