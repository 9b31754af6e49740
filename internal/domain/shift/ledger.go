package shift

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
	"github.com/xenking/posledger/internal/domain/page"
)

// ErrActiveShiftExists is returned by Store implementations when inserting a
// shift collides with the one-active-shift-per-user constraint.
var ErrActiveShiftExists = apperr.Conflict("user already has an active shift")

// Ledger manages cashier shifts.
type Ledger struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewLedger creates a shift Ledger.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Start opens a shift for userID. A user with an active shift gets a
// conflict, including when a concurrent Start wins the race.
func (l *Ledger) Start(ctx context.Context, userID string, openingCash decimal.Decimal) (*Shift, error) {
	if userID == "" {
		return nil, apperr.Validation("user id required")
	}
	if openingCash.IsNegative() {
		return nil, apperr.Validation("opening cash must not be negative")
	}

	s := &Shift{
		ID:          l.newID(),
		UserID:      userID,
		Start:       l.now().UTC(),
		OpeningCash: openingCash.Round(2),
		SalesCash:   decimal.Zero,
		SalesCard:   decimal.Zero,
		CashIn:      decimal.Zero,
		CashOut:     decimal.Zero,
	}

	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		active, err := tx.LockActiveShift(ctx, userID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			return errors.Wrap(err, "lookup active shift")
		default:
			return apperr.Conflict("user %s already has active shift %s", userID, active.ID)
		}
		return tx.InsertShift(ctx, s)
	})
	if err != nil {
		return nil, errors.Wrap(err, "start shift")
	}

	zctx.From(ctx).Info("Shift opened",
		zap.String("shift_id", s.ID),
		zap.String("user_id", userID),
		zap.Stringer("opening_cash", s.OpeningCash),
	)
	return s, nil
}

// End closes an active shift with the counted closing cash. Notes are kept
// when nil.
func (l *Ledger) End(ctx context.Context, shiftID string, closingCash decimal.Decimal, notes *string) (*Summary, error) {
	if closingCash.IsNegative() {
		return nil, apperr.Validation("closing cash must not be negative")
	}

	var result *Shift
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		s, err := tx.LockShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if !s.Active() {
			return apperr.Conflict("shift %s already ended", shiftID)
		}

		end := l.now().UTC()
		closing := closingCash.Round(2)
		s.End = &end
		s.ClosingCash = &closing
		if notes != nil {
			s.Notes = strings.TrimSpace(*notes)
		}
		if err := tx.UpdateShift(ctx, s); err != nil {
			return errors.Wrap(err, "update shift")
		}
		result = s
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "end shift")
	}

	sum := Summarize(result)
	lg := zctx.From(ctx).With(
		zap.String("shift_id", result.ID),
		zap.String("user_id", result.UserID),
		zap.Stringer("expected_cash", sum.ExpectedCash),
	)
	if sum.Discrepancy != nil && !sum.Discrepancy.IsZero() {
		lg.Warn("Shift closed with discrepancy", zap.Stringer("discrepancy", sum.Discrepancy))
	} else {
		lg.Info("Shift closed")
	}
	return &sum, nil
}

// Adjust applies a partial correction to a shift in either state.
func (l *Ledger) Adjust(ctx context.Context, shiftID string, adj Adjustment) (*Summary, error) {
	for name, v := range map[string]*decimal.Decimal{
		"opening cash": adj.OpeningCash,
		"closing cash": adj.ClosingCash,
		"cash in":      adj.CashIn,
		"cash out":     adj.CashOut,
		"cash sales":   adj.SalesCash,
		"card sales":   adj.SalesCard,
	} {
		if v != nil && v.IsNegative() {
			return nil, apperr.Validation("%s must not be negative", name)
		}
	}

	var result *Shift
	err := l.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		s, err := tx.LockShift(ctx, shiftID)
		if err != nil {
			return err
		}
		adj.apply(s)
		if err := tx.UpdateShift(ctx, s); err != nil {
			return errors.Wrap(err, "update shift")
		}
		result = s
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "adjust shift")
	}

	zctx.From(ctx).Info("Shift adjusted", zap.String("shift_id", shiftID))
	sum := Summarize(result)
	return &sum, nil
}

func (a Adjustment) apply(s *Shift) {
	set := func(dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil {
			*dst = v.Round(2)
		}
	}
	set(&s.OpeningCash, a.OpeningCash)
	set(&s.CashIn, a.CashIn)
	set(&s.CashOut, a.CashOut)
	set(&s.SalesCash, a.SalesCash)
	set(&s.SalesCard, a.SalesCard)
	if a.ClosingCash != nil {
		c := a.ClosingCash.Round(2)
		s.ClosingCash = &c
	}
	if a.Reconciled != nil {
		s.Reconciled = *a.Reconciled
	}
	if a.Notes != nil {
		s.Notes = strings.TrimSpace(*a.Notes)
	}
}

// Get returns a shift with its reconciliation figures.
func (l *Ledger) Get(ctx context.Context, shiftID string) (*Summary, error) {
	s, err := l.store.Get(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	sum := Summarize(s)
	return &sum, nil
}

// Active returns the user's active shift.
func (l *Ledger) Active(ctx context.Context, userID string) (*Summary, error) {
	s, err := l.store.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum := Summarize(s)
	return &sum, nil
}

// List returns shifts newest first.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Summary, error) {
	f.Limit, f.Offset = page.Clamp(f.Limit, f.Offset)
	shifts, err := l.store.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list shifts")
	}
	out := make([]Summary, len(shifts))
	for i := range shifts {
		out[i] = Summarize(&shifts[i])
	}
	return out, nil
}

// RecordSale adds amount to the running total selected by ch on userID's
// active shift, locking the shift row for the rest of tx. It returns nil
// without error when the user has no active shift.
func RecordSale(ctx context.Context, tx SalesTx, userID string, ch Channel, amount decimal.Decimal) (*Shift, error) {
	s, err := tx.LockActiveShift(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock active shift")
	}

	switch ch {
	case ChannelCash:
		s.SalesCash = s.SalesCash.Add(amount).Round(2)
	case ChannelCard:
		s.SalesCard = s.SalesCard.Add(amount).Round(2)
	default:
		return nil, apperr.Validation("unknown sales channel %q", ch)
	}

	if err := tx.UpdateSales(ctx, s.ID, s.SalesCash, s.SalesCard); err != nil {
		return nil, errors.Wrap(err, "update shift sales")
	}
	return s, nil
}
