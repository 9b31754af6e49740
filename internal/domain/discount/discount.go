package discount

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/apperr"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage deducts a percentage of the order subtotal.
	TypePercentage Type = "percentage"
	// TypeFixedAmount deducts a fixed monetary amount capped at the subtotal.
	TypeFixedAmount Type = "fixed_amount"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == TypePercentage || t == TypeFixedAmount
}

// Discount is a reusable discount definition. It is referenced by orders,
// never owned by them.
type Discount struct {
	ID         string
	Name       string
	Type       Type
	Value      decimal.Decimal
	Active     bool
	ValidFrom  *time.Time
	ValidUntil *time.Time
	MinAmount  *decimal.Decimal
}

// Reason explains why a discount did not apply.
type Reason string

const (
	ReasonInactive     Reason = "inactive"
	ReasonNotYetValid  Reason = "not_yet_valid"
	ReasonExpired      Reason = "expired"
	ReasonBelowMinimum Reason = "below_minimum"
)

// ErrNotApplicable is the named outcome for a discount that fails its
// applicability checks. It matches any *NotApplicableError.
var ErrNotApplicable = &NotApplicableError{}

// NotApplicableError reports a failed applicability check. It is a
// validation-kind error so callers that do not special-case it still see
// a well-classified failure.
type NotApplicableError struct {
	DiscountID string
	Reason     Reason
}

func (e *NotApplicableError) Error() string {
	return fmt.Sprintf("discount %s not applicable: %s", e.DiscountID, e.Reason)
}

// Is matches ErrNotApplicable and the validation kind.
func (e *NotApplicableError) Is(target error) bool {
	if _, ok := target.(*NotApplicableError); ok {
		return true
	}
	return target == apperr.ErrValidation
}
