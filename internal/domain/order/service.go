package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/discount"
	"github.com/xenking/posledger/internal/domain/menu"
	"github.com/xenking/posledger/internal/domain/page"
)

// ItemInput is a requested line item. UnitPrice overrides the menu price
// when set.
type ItemInput struct {
	ItemID    string
	Quantity  int
	UnitPrice *decimal.Decimal
	Notes     string
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	TableNumber *int
	CashierID   *string
	Notes       string
	Items       []ItemInput
}

// UpdateRequest holds the input for updating an order. Nil fields keep
// their stored values; a nil Items slice recomputes from the stored items.
type UpdateRequest struct {
	OrderID     string
	TableNumber *int
	Notes       *string
	Items       []ItemInput
	DiscountID  *string
	AppliedBy   *string
}

// DiscountOutcome reports what happened to a requested discount.
type DiscountOutcome struct {
	DiscountID string
	Applied    bool
	Amount     decimal.Decimal
	// Reason is set when the discount failed its applicability checks and
	// the update proceeded without it.
	Reason discount.Reason
}

// UpdateResult holds the output of an order update.
type UpdateResult struct {
	Detail   *Detail
	Discount *DiscountOutcome
}

// Service is the order aggregate manager.
type Service struct {
	store Store
	menu  menu.Resolver
	now   func() time.Time
	newID func() string
}

// NewService creates an order Service.
func NewService(store Store, resolver menu.Resolver) *Service {
	return &Service{
		store: store,
		menu:  resolver,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Create validates and resolves the items and persists a pending order with
// its item snapshots in one transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Detail, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation("items required")
	}
	if req.TableNumber != nil && *req.TableNumber <= 0 {
		return nil, apperr.Validation("table number must be positive")
	}

	now := s.now().UTC()
	o := &Order{
		ID:             s.newID(),
		TableNumber:    req.TableNumber,
		Status:         StatusPending,
		TotalAmount:    decimal.Zero,
		DiscountAmount: decimal.Zero,
		FinalAmount:    decimal.Zero,
		CashierID:      req.CashierID,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	items, total, err := s.buildItems(ctx, o.ID, req.Items)
	if err != nil {
		return nil, err
	}

	o.TotalAmount = total
	o.FinalAmount = total

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return errors.Wrap(err, "insert items")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.Int("items", len(items)),
		zap.Stringer("total", o.TotalAmount),
	)

	return &Detail{
		Order:      *o,
		Items:      items,
		PaidAmount: decimal.Zero,
	}, nil
}

// Update replaces items and the applied discount and recomputes totals under
// a row lock on the order.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	if req.TableNumber != nil && *req.TableNumber <= 0 {
		return nil, apperr.Validation("table number must be positive")
	}
	if req.Items != nil && len(req.Items) == 0 {
		return nil, apperr.Validation("items must not be empty when provided")
	}

	var (
		newItems []Item
		newTotal decimal.Decimal
	)
	if req.Items != nil {
		var err error
		newItems, newTotal, err = s.buildItems(ctx, req.OrderID, req.Items)
		if err != nil {
			return nil, err
		}
	}

	result := &UpdateResult{}
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}

		if req.Items != nil {
			if err := tx.DeleteItems(ctx, o.ID); err != nil {
				return errors.Wrap(err, "delete items")
			}
			if err := tx.InsertItems(ctx, newItems); err != nil {
				return errors.Wrap(err, "insert items")
			}
			o.TotalAmount = newTotal
		} else {
			items, err := tx.ListItems(ctx, o.ID)
			if err != nil {
				return errors.Wrap(err, "list items")
			}
			o.TotalAmount = sumItems(items)
		}

		if err := tx.DeleteDiscounts(ctx, o.ID); err != nil {
			return errors.Wrap(err, "delete discounts")
		}
		o.DiscountAmount = decimal.Zero

		if req.DiscountID != nil {
			outcome, err := s.applyDiscount(ctx, tx, o, *req.DiscountID, req.AppliedBy)
			if err != nil {
				return err
			}
			result.Discount = outcome
		}

		o.FinalAmount = o.TotalAmount.Sub(o.DiscountAmount).Round(2)
		if req.TableNumber != nil {
			o.TableNumber = req.TableNumber
		}
		if req.Notes != nil {
			o.Notes = strings.TrimSpace(*req.Notes)
		}
		o.UpdatedAt = s.now().UTC()

		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, errors.Wrap(err, "update order")
	}

	detail, err := s.store.Get(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "reload order")
	}
	result.Detail = detail
	return result, nil
}

// applyDiscount computes and persists the discount snapshot for o. A discount
// that fails its applicability checks yields an outcome with Applied=false
// and no error.
func (s *Service) applyDiscount(
	ctx context.Context,
	tx Tx,
	o *Order,
	discountID string,
	appliedBy *string,
) (*DiscountOutcome, error) {
	d, err := tx.FindDiscount(ctx, discountID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	amount, err := discount.Compute(o.TotalAmount, d, now)
	if err != nil {
		var na *discount.NotApplicableError
		if errors.As(err, &na) {
			zctx.From(ctx).Info("Discount skipped",
				zap.String("order_id", o.ID),
				zap.String("discount_id", d.ID),
				zap.String("reason", string(na.Reason)),
			)
			return &DiscountOutcome{DiscountID: d.ID, Amount: decimal.Zero, Reason: na.Reason}, nil
		}
		return nil, err
	}

	ad := AppliedDiscount{
		OrderID:      o.ID,
		DiscountID:   d.ID,
		AppliedValue: amount,
		AppliedBy:    appliedBy,
		AppliedAt:    now,
	}
	if err := tx.InsertDiscount(ctx, ad); err != nil {
		return nil, errors.Wrap(err, "insert order discount")
	}
	o.DiscountAmount = amount

	return &DiscountOutcome{DiscountID: d.ID, Applied: true, Amount: amount}, nil
}

// SetStatus moves an order to status following the transition table. Setting
// the current status is a no-op.
func (s *Service) SetStatus(ctx context.Context, orderID string, status Status) (*Order, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	var result *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		result = o
		if o.Status == status {
			return nil
		}
		if !o.Status.CanTransitionTo(status) {
			return apperr.Conflict("order %s cannot move from %s to %s", o.ID, o.Status, status)
		}
		if err := tx.UpdateStatus(ctx, o.ID, status); err != nil {
			return errors.Wrap(err, "update status")
		}
		o.Status = status
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "set order status")
	}
	return result, nil
}

// Get returns the order with its items, discounts and paid amount.
func (s *Service) Get(ctx context.Context, orderID string) (*Detail, error) {
	return s.store.Get(ctx, orderID)
}

// List returns orders newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	f.Limit, f.Offset = page.Clamp(f.Limit, f.Offset)
	return s.store.List(ctx, f)
}

// Delete removes an order together with its payments, discounts and items.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		if err := tx.DeletePayments(ctx, orderID); err != nil {
			return errors.Wrap(err, "delete payments")
		}
		if err := tx.DeleteDiscounts(ctx, orderID); err != nil {
			return errors.Wrap(err, "delete discounts")
		}
		if err := tx.DeleteItems(ctx, orderID); err != nil {
			return errors.Wrap(err, "delete items")
		}
		return tx.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return errors.Wrap(err, "delete order")
	}
	return nil
}

// buildItems validates quantities, resolves menu items in one batch, and
// returns the item snapshots with their rounded total.
func (s *Service) buildItems(ctx context.Context, orderID string, inputs []ItemInput) ([]Item, decimal.Decimal, error) {
	ids := make([]string, len(inputs))
	for i, in := range inputs {
		if in.ItemID == "" {
			return nil, decimal.Zero, apperr.Validation("item %d: item id required", i)
		}
		if in.Quantity <= 0 {
			return nil, decimal.Zero, apperr.Validation("quantity must be greater than 0 for item %s", in.ItemID)
		}
		if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
			return nil, decimal.Zero, apperr.Validation("unit price must not be negative for item %s", in.ItemID)
		}
		ids[i] = in.ItemID
	}

	resolved, err := s.menu.ResolveItems(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "resolve menu items")
	}

	items := make([]Item, len(inputs))
	for i, in := range inputs {
		mi, ok := resolved[in.ItemID]
		if !ok {
			return nil, decimal.Zero, &menu.ItemNotFoundError{ItemID: in.ItemID}
		}
		price := mi.Price
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		price = price.Round(2)
		items[i] = Item{
			ID:        s.newID(),
			OrderID:   orderID,
			ItemID:    in.ItemID,
			ItemName:  mi.Name,
			UnitPrice: price,
			Quantity:  in.Quantity,
			ItemTotal: price.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2),
			Notes:     strings.TrimSpace(in.Notes),
		}
	}
	return items, sumItems(items), nil
}

func sumItems(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.ItemTotal)
	}
	return total.Round(2)
}
