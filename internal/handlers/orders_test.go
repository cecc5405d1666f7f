package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

type stubOrderService struct {
	createFn  func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	confirmFn func(ctx context.Context, cmd services.ConfirmOrderCommand) (services.ConfirmOrderResult, error)
	cancelFn  func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	updateFn  func(ctx context.Context, cmd services.UpdateOrderFieldsCommand) (services.Order, error)
	getFn     func(ctx context.Context, orderID string) (services.Order, error)
	listFn    func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Confirm(ctx context.Context, cmd services.ConfirmOrderCommand) (services.ConfirmOrderResult, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.ConfirmOrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateFields(ctx context.Context, cmd services.UpdateOrderFieldsCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

type unavailableRepoError struct{}

func (unavailableRepoError) Error() string       { return "firestore: deadline exceeded" }
func (unavailableRepoError) IsNotFound() bool    { return false }
func (unavailableRepoError) IsConflict() bool    { return false }
func (unavailableRepoError) IsUnavailable() bool { return true }

var _ repositories.RepositoryError = unavailableRepoError{}

func newOrderRouter(svc services.OrderService) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, svc).Routes)
	return router
}

func sampleOrder(userID string) services.Order {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	size := "m"
	return services.Order{
		ID:            "ord_1",
		OrderNumber:   "SF-2025-000042",
		UserID:        userID,
		Status:        domain.OrderStatusProcessing,
		PaymentStatus: domain.PaymentStatusPaid,
		PaymentMethod: domain.PaymentMethodDirect,
		Currency:      "usd",
		Items: []services.OrderLineItem{
			{ProductID: "prod_1", Name: "Kurta", Size: &size, Quantity: 2, UnitPrice: 500, Total: 1000},
		},
		ShippingAddress: services.Address{Recipient: "Asha", Line1: "1 Main St", City: "Pune", PostalCode: "411001", Country: "IN"},
		Contact:         services.OrderContact{Email: "asha@example.com"},
		Totals:          services.OrderTotals{Subtotal: 1000, TaxAmount: 100, GrandTotal: 1100},
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestOrderHandlersListOrdersScopesToCaller(t *testing.T) {
	var captured services.OrderListFilter
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder("user-1")}, NextPageToken: "next"}, nil
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/orders?status=pending,Confirmed&pageSize=500&userId=someone-else", nil), "user-1")
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("customer listing must be scoped to the caller, got %q", captured.UserID)
	}
	if len(captured.Status) != 2 || captured.Status[0] != "pending" || captured.Status[1] != "confirmed" {
		t.Fatalf("unexpected status filter %v", captured.Status)
	}
	if captured.Pagination.PageSize != 100 {
		t.Fatalf("page size must be clamped to 100, got %d", captured.Pagination.PageSize)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.NextPageToken != "next" {
		t.Fatalf("unexpected response %+v", resp)
	}
	item := resp.Items[0]
	if item.Currency != "USD" || item.Totals.GrandTotal != 1100 || item.Items[0].Size != "m" {
		t.Fatalf("unexpected order payload %+v", item)
	}
}

func TestOrderHandlersListOrdersRejectsBadPaging(t *testing.T) {
	for _, query := range []string{"pageSize=abc", "pageSize=0", "pageToken=bm90LWpzb24"} {
		req := withIdentity(httptest.NewRequest(http.MethodGet, "/orders?"+query, nil), "user-1")
		rr := httptest.NewRecorder()
		newOrderRouter(&stubOrderService{}).ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", query, rr.Code)
		}
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(_ context.Context, orderID string) (services.Order, error) {
			if orderID != "ord_1" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder("user-1"), nil
		},
	}
	router := newOrderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Order.OrderNumber != "SF-2025-000042" || resp.Order.ShippingAddress.City != "Pune" {
		t.Fatalf("unexpected payload %+v", resp.Order)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil), "user-2"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign order must be hidden, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil), "user-1"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersRepositoryOutage(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(context.Context, string) (services.Order, error) {
			return services.Order{}, errors.Join(errors.New("order: repository unavailable"), unavailableRepoError{})
		},
	}
	rr := httptest.NewRecorder()
	newOrderRouter(svc).ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil), "user-1"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestOrderHandlersUnauthenticated(t *testing.T) {
	rr := httptest.NewRecorder()
	newOrderRouter(&stubOrderService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
