// Package handler exposes the sales ledger over HTTP with JSON bodies.
package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/auth"
	"github.com/xenking/posledger/internal/domain/order"
	"github.com/xenking/posledger/internal/domain/payment"
	"github.com/xenking/posledger/internal/domain/shift"
	"github.com/xenking/posledger/pkg/httpmiddleware"
)

// OrderService is the order aggregate manager.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Detail, error)
	Update(ctx context.Context, req order.UpdateRequest) (*order.UpdateResult, error)
	SetStatus(ctx context.Context, orderID string, status order.Status) (*order.Order, error)
	Get(ctx context.Context, orderID string) (*order.Detail, error)
	List(ctx context.Context, f order.ListFilter) ([]order.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// PaymentService is the payment ledger.
type PaymentService interface {
	Record(ctx context.Context, req payment.RecordRequest) (*payment.Receipt, error)
	List(ctx context.Context, f payment.Filter) ([]payment.Payment, error)
	ListForOrder(ctx context.Context, orderID string) ([]payment.Payment, error)
}

// ShiftService is the shift cash ledger.
type ShiftService interface {
	Start(ctx context.Context, userID string, openingCash decimal.Decimal) (*shift.Shift, error)
	End(ctx context.Context, shiftID string, closingCash decimal.Decimal, notes *string) (*shift.Summary, error)
	Adjust(ctx context.Context, shiftID string, adj shift.Adjustment) (*shift.Summary, error)
	Get(ctx context.Context, shiftID string) (*shift.Summary, error)
	Active(ctx context.Context, userID string) (*shift.Summary, error)
	List(ctx context.Context, f shift.Filter) ([]shift.Summary, error)
}

var (
	_ OrderService   = (*order.Service)(nil)
	_ PaymentService = (*payment.Ledger)(nil)
	_ ShiftService   = (*shift.Ledger)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	orders   OrderService
	payments PaymentService
	shifts   ShiftService
}

// NewHandler constructs a Handler with the domain services.
func NewHandler(orders OrderService, payments PaymentService, shifts ShiftService) *Handler {
	return &Handler{
		orders:   orders,
		payments: payments,
		shifts:   shifts,
	}
}

var (
	anyRole     = []auth.Role{auth.RoleCashier, auth.RoleSupervisor, auth.RoleOwner}
	supervisors = []auth.Role{auth.RoleSupervisor, auth.RoleOwner}
	owners      = []auth.Role{auth.RoleOwner}
)

// Register mounts all API routes on mux behind authn.
func (h *Handler) Register(mux *http.ServeMux, authn httpmiddleware.Middleware) {
	routes := []struct {
		pattern string
		roles   []auth.Role
		fn      http.HandlerFunc
	}{
		{"POST /api/orders", anyRole, h.createOrder},
		{"GET /api/orders", anyRole, h.listOrders},
		{"GET /api/orders/{id}", anyRole, h.getOrder},
		{"PATCH /api/orders/{id}", supervisors, h.updateOrder},
		{"PUT /api/orders/{id}/status", anyRole, h.setOrderStatus},
		{"DELETE /api/orders/{id}", owners, h.deleteOrder},

		{"POST /api/orders/{id}/payments", anyRole, h.recordPayment},
		{"GET /api/orders/{id}/payments", anyRole, h.listOrderPayments},
		{"GET /api/payments", anyRole, h.listPayments},

		{"POST /api/shifts", anyRole, h.startShift},
		{"GET /api/shifts", anyRole, h.listShifts},
		{"GET /api/shifts/active", anyRole, h.activeShift},
		{"GET /api/shifts/{id}", anyRole, h.getShift},
		{"POST /api/shifts/{id}/end", anyRole, h.endShift},
		{"PATCH /api/shifts/{id}", supervisors, h.adjustShift},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, httpmiddleware.Wrap(rt.fn,
			routeTag(rt.pattern),
			authn,
			RequireRole(rt.roles...),
		))
	}
}

// routeTag reports the matched pattern to the instrumentation middlewares.
func routeTag(pattern string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpmiddleware.SetRoute(r.Context(), pattern)
			next.ServeHTTP(w, r)
		})
	}
}

// principal returns the authenticated caller. Register guarantees one exists.
func principal(ctx context.Context) auth.Principal {
	p, _ := auth.PrincipalFrom(ctx)
	return p
}
