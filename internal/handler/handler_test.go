package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/posledger/internal/domain/apperr"
	"github.com/xenking/posledger/internal/domain/auth"
	"github.com/xenking/posledger/internal/domain/discount"
	"github.com/xenking/posledger/internal/domain/menu"
	"github.com/xenking/posledger/internal/domain/order"
	"github.com/xenking/posledger/internal/domain/payment"
	"github.com/xenking/posledger/internal/domain/shift"
)

// --- Fakes ---

type fakeOrders struct {
	lastCreate order.CreateRequest
	lastUpdate order.UpdateRequest
	lastList   order.ListFilter
	deleted    string
	err        error
}

func (f *fakeOrders) Create(_ context.Context, req order.CreateRequest) (*order.Detail, error) {
	f.lastCreate = req
	if f.err != nil {
		return nil, f.err
	}
	return &order.Detail{
		Order: order.Order{
			ID:          "o-1",
			Status:      order.StatusPending,
			TotalAmount: decimal.RequireFromString("15.50"),
			FinalAmount: decimal.RequireFromString("15.50"),
			CashierID:   req.CashierID,
			CreatedAt:   testTime,
			UpdatedAt:   testTime,
		},
		Items: []order.Item{{
			ID: "i-1", ItemID: "m1", ItemName: "Soup",
			UnitPrice: decimal.RequireFromString("5.50"), Quantity: 1,
			ItemTotal: decimal.RequireFromString("5.50"),
		}},
	}, nil
}

func (f *fakeOrders) Update(_ context.Context, req order.UpdateRequest) (*order.UpdateResult, error) {
	f.lastUpdate = req
	if f.err != nil {
		return nil, f.err
	}
	res := &order.UpdateResult{Detail: &order.Detail{Order: order.Order{ID: req.OrderID, Status: order.StatusPending}}}
	if req.DiscountID != nil {
		res.Discount = &order.DiscountOutcome{
			DiscountID: *req.DiscountID,
			Applied:    true,
			Amount:     decimal.RequireFromString("1.55"),
		}
	}
	return res, nil
}

func (f *fakeOrders) SetStatus(_ context.Context, id string, st order.Status) (*order.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &order.Order{ID: id, Status: st}, nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (*order.Detail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &order.Detail{Order: order.Order{ID: id, Status: order.StatusPending}}, nil
}

func (f *fakeOrders) List(_ context.Context, lf order.ListFilter) ([]order.Order, error) {
	f.lastList = lf
	if f.err != nil {
		return nil, f.err
	}
	return []order.Order{{ID: "o-1"}, {ID: "o-2"}}, nil
}

func (f *fakeOrders) Delete(_ context.Context, id string) error {
	f.deleted = id
	return f.err
}

type fakePayments struct {
	last payment.RecordRequest
	err  error
}

func (f *fakePayments) Record(_ context.Context, req payment.RecordRequest) (*payment.Receipt, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	shiftID := "s-1"
	return &payment.Receipt{
		Payment: payment.Payment{
			ID: "p-1", OrderID: req.OrderID, Amount: req.Amount,
			Method: req.Method, CashierID: req.CashierID, PaidAt: testTime,
		},
		ShiftID:     &shiftID,
		PaidTotal:   req.Amount,
		OrderStatus: order.StatusCompleted,
		Completed:   true,
	}, nil
}

func (f *fakePayments) List(context.Context, payment.Filter) ([]payment.Payment, error) {
	return nil, f.err
}

func (f *fakePayments) ListForOrder(_ context.Context, id string) ([]payment.Payment, error) {
	return []payment.Payment{{ID: "p-1", OrderID: id, Method: payment.MethodCard}}, f.err
}

type fakeShifts struct {
	startedFor string
	activeFor  string
	err        error
}

func (f *fakeShifts) Start(_ context.Context, userID string, opening decimal.Decimal) (*shift.Shift, error) {
	f.startedFor = userID
	if f.err != nil {
		return nil, f.err
	}
	return &shift.Shift{ID: "s-1", UserID: userID, Start: testTime, OpeningCash: opening}, nil
}

func (f *fakeShifts) End(_ context.Context, id string, closing decimal.Decimal, _ *string) (*shift.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	end := testTime.Add(8 * time.Hour)
	sum := shift.Summarize(&shift.Shift{
		ID: id, UserID: "u-1", Start: testTime, End: &end,
		OpeningCash: decimal.RequireFromString("100.00"),
		SalesCash:   decimal.RequireFromString("12.15"),
		ClosingCash: &closing,
	})
	return &sum, nil
}

func (f *fakeShifts) Adjust(_ context.Context, id string, _ shift.Adjustment) (*shift.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	sum := shift.Summarize(&shift.Shift{ID: id, Start: testTime})
	return &sum, nil
}

func (f *fakeShifts) Get(_ context.Context, id string) (*shift.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	sum := shift.Summarize(&shift.Shift{ID: id, Start: testTime})
	return &sum, nil
}

func (f *fakeShifts) Active(_ context.Context, userID string) (*shift.Summary, error) {
	f.activeFor = userID
	if f.err != nil {
		return nil, f.err
	}
	sum := shift.Summarize(&shift.Shift{ID: "s-1", UserID: userID, Start: testTime})
	return &sum, nil
}

func (f *fakeShifts) List(context.Context, shift.Filter) ([]shift.Summary, error) {
	return nil, f.err
}

type fakeKeys struct {
	byHash map[string]*auth.APIKeyInfo
}

func (f *fakeKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := f.byHash[hash]
	if !ok {
		return nil, apperr.NotFound("api key", hash)
	}
	return info, nil
}

// --- Helpers ---

var (
	testTime   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testPepper = []byte("pepper")
	testSecret = []byte("jwt-secret")
)

type env struct {
	mux      *http.ServeMux
	orders   *fakeOrders
	payments *fakePayments
	shifts   *fakeShifts
}

func newEnv(t *testing.T) *env {
	t.Helper()
	keys := &fakeKeys{byHash: map[string]*auth.APIKeyInfo{}}
	for key, p := range map[string]auth.Principal{
		"cashier-key":    {UserID: "u-1", Role: auth.RoleCashier},
		"supervisor-key": {UserID: "u-2", Role: auth.RoleSupervisor},
		"owner-key":      {UserID: "u-3", Role: auth.RoleOwner},
	} {
		hash := HashAPIKey(testPepper, key)
		keys.byHash[hash] = &auth.APIKeyInfo{ID: key, KeyHash: hash, UserID: p.UserID, Role: p.Role}
	}

	e := &env{
		mux:      http.NewServeMux(),
		orders:   &fakeOrders{},
		payments: &fakePayments{},
		shifts:   &fakeShifts{},
	}
	authn := NewAuthenticator(keys, testPepper, testSecret)
	NewHandler(e.orders, e.payments, e.shifts).Register(e.mux, authn.Authenticate())
	return e
}

func (e *env) do(t *testing.T, key, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// decodeFields flattens the top-level string fields of a JSON object.
func decodeFields(t *testing.T, body []byte) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			out[string(key)] = s
			return err
		case jx.Bool:
			b, err := d.Bool()
			if b {
				out[string(key)] = "true"
			} else {
				out[string(key)] = "false"
			}
			return err
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return out
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	e := newEnv(t)

	t.Run("missing credentials", func(t *testing.T) {
		rec := e.do(t, "", http.MethodGet, "/api/orders", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthorized", decodeFields(t, rec.Body.Bytes())["kind"])
	})

	t.Run("unknown key", func(t *testing.T) {
		rec := e.do(t, "nope", http.MethodGet, "/api/orders", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("api key", func(t *testing.T) {
		rec := e.do(t, "cashier-key", http.MethodGet, "/api/orders", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		token, err := IssueToken(testSecret, auth.Principal{UserID: "u-9", Role: auth.RoleOwner}, time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodDelete, "/api/orders/o-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "o-1", e.orders.deleted)
	})

	t.Run("bearer token signed with another secret", func(t *testing.T) {
		token, err := IssueToken([]byte("other"), auth.Principal{UserID: "u-9", Role: auth.RoleOwner}, time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired bearer token", func(t *testing.T) {
		token, err := IssueToken(testSecret, auth.Principal{UserID: "u-9", Role: auth.RoleOwner}, -time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRoleGating(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		method string
		target string
		body   string
		want   int
	}{
		{"cashier cannot delete", "cashier-key", http.MethodDelete, "/api/orders/o-1", "", http.StatusForbidden},
		{"supervisor cannot delete", "supervisor-key", http.MethodDelete, "/api/orders/o-1", "", http.StatusForbidden},
		{"owner deletes", "owner-key", http.MethodDelete, "/api/orders/o-1", "", http.StatusOK},
		{"cashier cannot edit order", "cashier-key", http.MethodPatch, "/api/orders/o-1", `{"notes":"x"}`, http.StatusForbidden},
		{"supervisor edits order", "supervisor-key", http.MethodPatch, "/api/orders/o-1", `{"notes":"x"}`, http.StatusOK},
		{"cashier cannot adjust shift", "cashier-key", http.MethodPatch, "/api/shifts/s-1", `{"cash_in":"5"}`, http.StatusForbidden},
		{"owner adjusts shift", "owner-key", http.MethodPatch, "/api/shifts/s-1", `{"cash_in":"5"}`, http.StatusOK},
		{"cashier records payment", "cashier-key", http.MethodPost, "/api/orders/o-1/payments", `{"payment_method":"cash","amount":"5.00"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			rec := e.do(t, tt.key, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{"validation", apperr.Validation("quantity must be positive"), http.StatusBadRequest, "validation", "quantity must be positive"},
		{"not found", apperr.NotFound("order", "o-1"), http.StatusNotFound, "not_found", "order o-1 not found"},
		{"conflict", apperr.Conflict("order is cancelled"), http.StatusConflict, "conflict", "order is cancelled"},
		{"consistency", apperr.Consistency("row count 0"), http.StatusInternalServerError, "consistency", "row count 0"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal", "internal server error"},
		{"unknown menu item", &menu.ItemNotFoundError{ItemID: "nope"}, http.StatusNotFound, "not_found", "menu item nope not found"},
		{
			"discount not applicable",
			&discount.NotApplicableError{DiscountID: "d-1", Reason: discount.ReasonExpired},
			http.StatusBadRequest, "validation", "discount d-1 not applicable: expired",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.orders.err = tt.err

			rec := e.do(t, "cashier-key", http.MethodGet, "/api/orders/o-1", "")
			require.Equal(t, tt.wantCode, rec.Code)
			fields := decodeFields(t, rec.Body.Bytes())
			assert.Equal(t, tt.wantKind, fields["kind"])
			assert.Equal(t, tt.wantMsg, fields["message"])
		})
	}
}

func TestCreateOrder(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "cashier-key", http.MethodPost, "/api/orders",
		`{"table_number":4,"notes":"window","items":[{"item_id":"m1","quantity":2,"unit_price":4.333},{"item_id":"m2","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := e.orders.lastCreate
	require.NotNil(t, req.TableNumber)
	assert.Equal(t, 4, *req.TableNumber)
	assert.Equal(t, "window", req.Notes)
	require.Len(t, req.Items, 2)
	require.NotNil(t, req.Items[0].UnitPrice)
	assert.Equal(t, "4.333", req.Items[0].UnitPrice.String())
	assert.Nil(t, req.Items[1].UnitPrice)
	require.NotNil(t, req.CashierID)
	assert.Equal(t, "u-1", *req.CashierID, "cashier defaults to the caller")

	fields := decodeFields(t, rec.Body.Bytes())
	assert.Equal(t, "o-1", fields["id"])
	assert.Equal(t, "15.50", fields["total_amount"])
	assert.Equal(t, "0.00", fields["discount_amount"])
	assert.Equal(t, "pending", fields["status"])
	assert.Equal(t, "2026-03-01T12:00:00Z", fields["order_date"])
}

func TestCreateOrder_UnknownMenuItem(t *testing.T) {
	e := newEnv(t)
	e.orders.err = errors.Wrap(&menu.ItemNotFoundError{ItemID: "nope"}, "create order")

	rec := e.do(t, "cashier-key", http.MethodPost, "/api/orders", `{"items":[{"item_id":"nope","quantity":1}]}`)
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	fields := decodeFields(t, rec.Body.Bytes())
	assert.Equal(t, "not_found", fields["kind"])
	assert.Equal(t, "create order: menu item nope not found", fields["message"])
}

func TestCreateOrder_BadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"quantity as string", `{"items":[{"item_id":"m1","quantity":"two"}]}`},
		{"unit price not decimal", `{"items":[{"item_id":"m1","quantity":1,"unit_price":"abc"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			rec := e.do(t, "cashier-key", http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation", decodeFields(t, rec.Body.Bytes())["kind"])
		})
	}
}

func TestUpdateOrder_Discount(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "supervisor-key", http.MethodPatch, "/api/orders/o-7", `{"discount_id":"d-10","items":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req := e.orders.lastUpdate
	assert.Equal(t, "o-7", req.OrderID)
	assert.Nil(t, req.Items)
	require.NotNil(t, req.AppliedBy)
	assert.Equal(t, "u-2", *req.AppliedBy)
	assert.Contains(t, rec.Body.String(), `"discount_outcome":{"discount_id":"d-10","applied":true,"amount":"1.55"}`)
}

func TestSetOrderStatus(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "cashier-key", http.MethodPut, "/api/orders/o-1/status", `{"status":"cancelled"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeFields(t, rec.Body.Bytes())["status"])

	rec = e.do(t, "cashier-key", http.MethodPut, "/api/orders/o-1/status", `{"status":"refunded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrders_Query(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "cashier-key", http.MethodGet, "/api/orders?status=pending&limit=10&offset=5&from=2026-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.StatusPending, e.orders.lastList.Status)
	assert.Equal(t, 10, e.orders.lastList.Limit)
	assert.Equal(t, 5, e.orders.lastList.Offset)
	require.NotNil(t, e.orders.lastList.From)
	assert.True(t, e.orders.lastList.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	rec = e.do(t, "cashier-key", http.MethodGet, "/api/orders?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, "cashier-key", http.MethodGet, "/api/orders?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordPayment(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "cashier-key", http.MethodPost, "/api/orders/o-1/payments",
		`{"payment_method":"card","amount":12.15,"transaction_ref":"tx-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := e.payments.last
	assert.Equal(t, "o-1", req.OrderID)
	assert.Equal(t, payment.MethodCard, req.Method)
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("12.15")))
	require.NotNil(t, req.CashierID)
	assert.Equal(t, "u-1", *req.CashierID)

	fields := decodeFields(t, rec.Body.Bytes())
	assert.Equal(t, "s-1", fields["shift_id"])
	assert.Equal(t, "12.15", fields["paid_total"])
	assert.Equal(t, "completed", fields["order_status"])
	assert.Equal(t, "true", fields["completed"])
}

func TestRecordPayment_Conflict(t *testing.T) {
	e := newEnv(t)
	e.payments.err = apperr.Conflict("order o-1 is cancelled")

	rec := e.do(t, "cashier-key", http.MethodPost, "/api/orders/o-1/payments", `{"payment_method":"cash","amount":"1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartShift(t *testing.T) {
	t.Run("defaults to caller", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, "cashier-key", http.MethodPost, "/api/shifts", `{"opening_cash":"100"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "u-1", e.shifts.startedFor)

		fields := decodeFields(t, rec.Body.Bytes())
		assert.Equal(t, "100.00", fields["opening_cash"])
		assert.Equal(t, "100.00", fields["expected_cash"])
		assert.NotContains(t, fields, "discrepancy")
	})

	t.Run("cashier for another user", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, "cashier-key", http.MethodPost, "/api/shifts", `{"user_id":"u-5","opening_cash":"100"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, e.shifts.startedFor)
	})

	t.Run("supervisor for another user", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, "supervisor-key", http.MethodPost, "/api/shifts", `{"user_id":"u-5","opening_cash":"100"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "u-5", e.shifts.startedFor)
	})

	t.Run("opening cash required", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, "cashier-key", http.MethodPost, "/api/shifts", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("already active", func(t *testing.T) {
		e := newEnv(t)
		e.shifts.err = shift.ErrActiveShiftExists
		rec := e.do(t, "cashier-key", http.MethodPost, "/api/shifts", `{"opening_cash":"100"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestEndShift(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "cashier-key", http.MethodPost, "/api/shifts/s-1/end", `{"closing_cash":"110.00","notes":"short"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	fields := decodeFields(t, rec.Body.Bytes())
	assert.Equal(t, "112.15", fields["expected_cash"])
	assert.Equal(t, "-2.15", fields["discrepancy"])
	assert.Equal(t, "2026-03-01T20:00:00Z", fields["shift_end"])
}

func TestActiveShift(t *testing.T) {
	t.Run("own shift", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, "cashier-key", http.MethodGet, "/api/shifts/active", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "u-1", e.shifts.activeFor)
		assert.Equal(t, "s-1", decodeFields(t, rec.Body.Bytes())["id"])
	})

	t.Run("cashier for another user", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, "cashier-key", http.MethodGet, "/api/shifts/active?user_id=u-5", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, e.shifts.activeFor)
	})

	t.Run("supervisor for another user", func(t *testing.T) {
		e := newEnv(t)
		rec := e.do(t, "supervisor-key", http.MethodGet, "/api/shifts/active?user_id=u-5", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-5", e.shifts.activeFor)
	})

	t.Run("no active shift", func(t *testing.T) {
		e := newEnv(t)
		e.shifts.err = apperr.NotFound("active shift for user", "u-1")
		rec := e.do(t, "cashier-key", http.MethodGet, "/api/shifts/active", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, "owner-key", http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
