package shift

import (
	"context"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/posledger/internal/domain/apperr"
)

type memStore struct {
	mu       sync.Mutex
	shifts   map[string]Shift
	lastList Filter
}

func newMemStore() *memStore {
	return &memStore{shifts: map[string]Shift{}}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := maps.Clone(m.shifts)
	if err := fn(ctx, &memTx{shifts: work}); err != nil {
		return err
	}
	m.shifts = work
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shifts[id]
	if !ok {
		return nil, apperr.NotFound("shift", id)
	}
	return &s, nil
}

func (m *memStore) Active(_ context.Context, userID string) (*Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{shifts: m.shifts}).LockActiveShift(context.Background(), userID)
}

func (m *memStore) List(_ context.Context, f Filter) ([]Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastList = f
	var out []Shift
	for _, s := range m.shifts {
		if f.UserID != "" && s.UserID != f.UserID {
			continue
		}
		if f.ActiveOnly && !s.Active() {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type memTx struct {
	shifts map[string]Shift
}

func (t *memTx) LockActiveShift(_ context.Context, userID string) (*Shift, error) {
	for _, s := range t.shifts {
		if s.UserID == userID && s.Active() {
			return &s, nil
		}
	}
	return nil, apperr.NotFound("active shift for user", userID)
}

func (t *memTx) UpdateSales(_ context.Context, id string, cash, card decimal.Decimal) error {
	s := t.shifts[id]
	s.SalesCash, s.SalesCard = cash, card
	t.shifts[id] = s
	return nil
}

func (t *memTx) InsertShift(_ context.Context, s *Shift) error {
	for _, existing := range t.shifts {
		if existing.UserID == s.UserID && existing.Active() {
			return ErrActiveShiftExists
		}
	}
	t.shifts[s.ID] = *s
	return nil
}

func (t *memTx) LockShift(_ context.Context, id string) (*Shift, error) {
	s, ok := t.shifts[id]
	if !ok {
		return nil, apperr.NotFound("shift", id)
	}
	return &s, nil
}

func (t *memTx) UpdateShift(_ context.Context, s *Shift) error {
	t.shifts[s.ID] = *s
	return nil
}

var testNow = time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func ptr[T any](v T) *T { return &v }

func newTestLedger(store Store) *Ledger {
	l := NewLedger(store)
	l.now = func() time.Time { return testNow }
	return l
}

func TestStart(t *testing.T) {
	l := newTestLedger(newMemStore())

	s, err := l.Start(context.Background(), "user-x", dec("100.00"))

	require.NoError(t, err)
	assert.True(t, s.Active())
	assert.Equal(t, "user-x", s.UserID)
	assert.Equal(t, testNow, s.Start)
	assert.True(t, dec("100.00").Equal(s.OpeningCash))
	assert.True(t, s.SalesCash.IsZero())
	assert.True(t, s.SalesCard.IsZero())
	assert.Nil(t, s.ClosingCash)
}

func TestStart_SecondActiveShiftConflicts(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)

	_, err := l.Start(context.Background(), "user-x", dec("100"))
	require.NoError(t, err)

	_, err = l.Start(context.Background(), "user-x", dec("50"))
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, store.shifts, 1)

	_, err = l.Start(context.Background(), "user-y", dec("50"))
	require.NoError(t, err, "other users are unaffected")
}

func TestStart_AfterEndAllowed(t *testing.T) {
	l := newTestLedger(newMemStore())

	first, err := l.Start(context.Background(), "user-x", dec("100"))
	require.NoError(t, err)
	_, err = l.End(context.Background(), first.ID, dec("100"), nil)
	require.NoError(t, err)

	_, err = l.Start(context.Background(), "user-x", dec("80"))
	require.NoError(t, err)
}

func TestStart_Validation(t *testing.T) {
	l := newTestLedger(newMemStore())

	_, err := l.Start(context.Background(), "user-x", dec("-1"))
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = l.Start(context.Background(), "", dec("1"))
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEnd(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	s, err := l.Start(context.Background(), "user-x", dec("100.00"))
	require.NoError(t, err)
	require.NoError(t, store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := RecordSale(ctx, tx, "user-x", ChannelCash, dec("12.15"))
		return err
	}))

	sum, err := l.End(context.Background(), s.ID, dec("110.00"), ptr("short drawer"))

	require.NoError(t, err)
	assert.False(t, sum.Active())
	require.NotNil(t, sum.ClosingCash)
	assert.True(t, dec("112.15").Equal(sum.ExpectedCash))
	require.NotNil(t, sum.Discrepancy)
	assert.True(t, dec("-2.15").Equal(*sum.Discrepancy))
	assert.Equal(t, "short drawer", sum.Notes)
}

func TestEnd_Errors(t *testing.T) {
	l := newTestLedger(newMemStore())

	_, err := l.End(context.Background(), "missing", dec("1"), nil)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	s, err := l.Start(context.Background(), "user-x", dec("10"))
	require.NoError(t, err)
	_, err = l.End(context.Background(), s.ID, dec("10"), nil)
	require.NoError(t, err)

	_, err = l.End(context.Background(), s.ID, dec("12"), nil)
	require.ErrorIs(t, err, apperr.ErrConflict, "double ending is rejected")

	got, err := l.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(*got.ClosingCash), "closing cash unchanged")
}

func TestAdjust_PartialUpdate(t *testing.T) {
	l := newTestLedger(newMemStore())
	s, err := l.Start(context.Background(), "user-x", dec("100"))
	require.NoError(t, err)

	sum, err := l.Adjust(context.Background(), s.ID, Adjustment{
		CashIn:  ptr(dec("20")),
		CashOut: ptr(dec("5.50")),
	})
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(sum.OpeningCash), "omitted field kept")
	assert.True(t, dec("114.50").Equal(sum.ExpectedCash))
	assert.Nil(t, sum.Discrepancy)
	assert.True(t, sum.Active(), "adjusting does not close")

	sum, err = l.Adjust(context.Background(), s.ID, Adjustment{
		Reconciled: ptr(true),
		Notes:      ptr("counted twice"),
	})
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(sum.CashIn), "earlier adjustment kept")
	assert.True(t, sum.Reconciled)
	assert.Equal(t, "counted twice", sum.Notes)
}

func TestAdjust_Errors(t *testing.T) {
	l := newTestLedger(newMemStore())

	_, err := l.Adjust(context.Background(), "missing", Adjustment{Notes: ptr("x")})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = l.Adjust(context.Background(), "missing", Adjustment{CashOut: ptr(dec("-1"))})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRecordSale(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	s, err := l.Start(context.Background(), "user-x", dec("0"))
	require.NoError(t, err)

	err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		got, err := RecordSale(ctx, tx, "user-x", ChannelCash, dec("12.15"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, s.ID, got.ID)

		_, err = RecordSale(ctx, tx, "user-x", ChannelCard, dec("7.00"))
		require.NoError(t, err)

		none, err := RecordSale(ctx, tx, "user-without-shift", ChannelCash, dec("1"))
		require.NoError(t, err)
		assert.Nil(t, none)
		return nil
	})
	require.NoError(t, err)

	got, err := l.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, dec("12.15").Equal(got.SalesCash))
	assert.True(t, dec("7.00").Equal(got.SalesCard))
}

func TestDiscrepancyLaw(t *testing.T) {
	tests := []struct {
		opening, sales, in, out, closing string
		want                             string
	}{
		{"100", "12.15", "0", "0", "112.15", "0"},
		{"100", "50", "20", "10", "150", "-10"},
		{"0", "0.005", "0", "0", "0", "-0.01"},
		{"50.25", "10.10", "5", "3.35", "70", "8"},
	}
	for _, tt := range tests {
		s := &Shift{
			OpeningCash: dec(tt.opening),
			SalesCash:   dec(tt.sales),
			CashIn:      dec(tt.in),
			CashOut:     dec(tt.out),
			ClosingCash: ptr(dec(tt.closing)),
		}
		got := Discrepancy(s)
		require.NotNil(t, got)
		assert.True(t, dec(tt.want).Equal(*got), "want %s, got %s", tt.want, got)
		assert.True(t, got.Equal(s.ClosingCash.Sub(ExpectedCashBalance(s))))
	}

	open := &Shift{OpeningCash: dec("10")}
	assert.Nil(t, Discrepancy(open))
	assert.True(t, dec("10").Equal(ExpectedCashBalance(open)))
}

func TestList_Summaries(t *testing.T) {
	l := newTestLedger(newMemStore())
	_, err := l.Start(context.Background(), "user-x", dec("10"))
	require.NoError(t, err)
	_, err = l.Start(context.Background(), "user-y", dec("20"))
	require.NoError(t, err)

	got, err := l.List(context.Background(), Filter{UserID: "user-y"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, dec("20").Equal(got[0].ExpectedCash))

	active, err := l.Active(context.Background(), "user-x")
	require.NoError(t, err)
	assert.Equal(t, "user-x", active.UserID)

	_, err = l.Active(context.Background(), "nobody")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestList_Paging(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)

	_, err := l.List(context.Background(), Filter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 500, store.lastList.Limit)

	_, err = l.List(context.Background(), Filter{Offset: -2})
	require.NoError(t, err)
	assert.Equal(t, 50, store.lastList.Limit)
	assert.Equal(t, 0, store.lastList.Offset)
}
