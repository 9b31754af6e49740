package discount

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/apperr"
)

var hundred = decimal.NewFromInt(100)

// Check runs the applicability checks for d against subtotal at now.
// It returns a *NotApplicableError when any check fails.
func Check(d *Discount, subtotal decimal.Decimal, now time.Time) error {
	switch {
	case !d.Active:
		return &NotApplicableError{DiscountID: d.ID, Reason: ReasonInactive}
	case d.ValidFrom != nil && now.Before(*d.ValidFrom):
		return &NotApplicableError{DiscountID: d.ID, Reason: ReasonNotYetValid}
	case d.ValidUntil != nil && now.After(*d.ValidUntil):
		return &NotApplicableError{DiscountID: d.ID, Reason: ReasonExpired}
	case d.MinAmount != nil && subtotal.LessThan(*d.MinAmount):
		return &NotApplicableError{DiscountID: d.ID, Reason: ReasonBelowMinimum}
	}
	return nil
}

// Compute returns the amount d deducts from subtotal at now, rounded to the
// currency minor unit. The result never exceeds subtotal and is never
// negative. Compute has no side effects.
func Compute(subtotal decimal.Decimal, d *Discount, now time.Time) (decimal.Decimal, error) {
	if subtotal.IsNegative() {
		return decimal.Zero, apperr.Validation("subtotal must not be negative")
	}
	if err := Check(d, subtotal, now); err != nil {
		return decimal.Zero, err
	}

	var amount decimal.Decimal
	switch d.Type {
	case TypePercentage:
		if d.Value.IsNegative() || d.Value.GreaterThan(hundred) {
			return decimal.Zero, apperr.Validation("discount %s: percentage %s out of range", d.ID, d.Value)
		}
		amount = subtotal.Mul(d.Value).Div(hundred)
	case TypeFixedAmount:
		if d.Value.IsNegative() {
			return decimal.Zero, apperr.Validation("discount %s: negative fixed amount", d.ID)
		}
		amount = decimal.Min(d.Value, subtotal)
	default:
		return decimal.Zero, apperr.Validation("discount %s: unsupported type %q", d.ID, d.Type)
	}

	return amount.Round(2), nil
}
