package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/metrics"
	"github.com/hanko-field/storefront/internal/services"
)

func TestNewRouter_DefaultMounts(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	healthHandlers := NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{
			report: services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			},
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	router := NewRouter(WithHealthHandlers(healthHandlers))

	t.Run("healthz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected content-type application/json, got %s", ct)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("unconfigured group", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil))
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("expected status 501, got %d", rr.Code)
		}
		if code := decodeErrorCode(t, rr); code != "not_implemented" {
			t.Fatalf("expected not_implemented error, got %v", code)
		}
	})

	t.Run("metrics disabled", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestNewRouter_NotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	NewRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/does/not/exist", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "route_not_found" {
		t.Fatalf("expected route_not_found error, got %v", code)
	}
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	recorder := metrics.NewRecorder()
	recorder.CheckoutOutcome("direct", "success")

	rr := httptest.NewRecorder()
	NewRouter(WithMetricsHandler(recorder.Handler())).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "storefront_checkout_outcomes_total") {
		t.Fatalf("expected checkout counter in scrape output")
	}
}

func TestNewRouter_OrdersGroupServesReadsAndPlacement(t *testing.T) {
	orders := &stubOrderService{
		listFn: func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			return domain.CursorPage[services.Order]{}, nil
		},
	}
	checkout := &stubCheckoutService{
		placeFn: func(_ context.Context, cmd services.PlaceDirectCommand) (services.Order, error) {
			return services.Order{ID: "ord_1", UserID: cmd.UserID}, nil
		},
	}
	router := NewRouter(WithOrderRoutes(CombineRegistrars(
		NewOrderHandlers(nil, orders).Routes,
		NewCheckoutHandlers(nil, checkout).Routes,
	)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil), "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected list 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	body := strings.NewReader(`{"paymentReference":"bank-123"}`)
	router.ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/orders", body), "user-1"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected placement 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestNewRouter_IdempotentPlacementReplays(t *testing.T) {
	calls := 0
	checkout := &stubCheckoutService{
		placeFn: func(_ context.Context, cmd services.PlaceDirectCommand) (services.Order, error) {
			calls++
			return services.Order{ID: "ord_1", UserID: cmd.UserID}, nil
		},
	}
	store := idempotency.NewMemoryStore()
	router := chi.NewRouter()
	router.Route("/orders", NewCheckoutHandlers(nil, checkout, idempotency.Middleware(store)).Routes)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"paymentReference":"bank-123"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, withIdentity(req, "user-1"))
		return rr
	}

	first, second := send(), send()
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both 201, got %d and %d", first.Code, second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected the service to run once, ran %d times", calls)
	}
	var a, b orderResponse
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Order.ID != b.Order.ID {
		t.Fatalf("replayed body differs: %s vs %s", a.Order.ID, b.Order.ID)
	}
}
