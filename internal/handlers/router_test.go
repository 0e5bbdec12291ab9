package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/forever-store/api/internal/domain"
	"github.com/forever-store/api/internal/platform/auth"
	"github.com/forever-store/api/internal/services"
)

func TestNewRouterDefaultMounts(t *testing.T) {
	router := NewRouter()

	cases := []struct {
		method string
		path   string
		status int
		code   string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, ""},
		{http.MethodGet, "/readyz", http.StatusOK, ""},
		{http.MethodGet, "/api/v1/orders/mine", http.StatusNotImplemented, "not_implemented"},
		{http.MethodPost, "/api/v1/admin/orders/ord_1/status", http.StatusNotImplemented, "not_implemented"},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound, "route_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if tc.code != "" {
				if body := decodeBody(t, rr); body["error"] != tc.code {
					t.Fatalf("expected error %s, got %v", tc.code, body["error"])
				}
			}
		})
	}
}

func TestNewRouterMountsOrderGroups(t *testing.T) {
	orders := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			order := sampleOrder
			order.ID = cmd.OrderID
			order.Status = domain.StatusCancelled
			return order, nil
		},
		getFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return sampleOrder, nil
		},
	}
	timeline := &stubTimelineService{}

	router := NewRouter(
		WithBasePath("/api/v2/"),
		WithMiddlewares(withIdentity("user-1", auth.RoleUser)),
		WithOrderRoutes(NewOrderHandlers(nil, orders).Routes),
		WithOrderRoutes(NewTimelineHandlers(nil, orders, timeline).Routes),
		WithAdminRoutes(NewAdminOrderHandlers(nil, orders).Routes),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v2/orders/ord_7/cancel", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected cancel to be mounted, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["id"] != "ord_7" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v2/orders/ord_1/timeline", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected timeline to be mounted, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v2/orders/mine", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestNewRouterRootBasePath(t *testing.T) {
	router := NewRouter(
		WithBasePath(""),
		WithMiddlewares(withIdentity("user-1", auth.RoleUser)),
		WithOrderRoutes(NewOrderHandlers(nil, &stubOrderService{}).Routes),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/mine", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Fatalf("expected empty items array, got %s", rr.Body.String())
	}
}

func TestRouteRegistrarSignature(t *testing.T) {
	var registrar RouteRegistrar = func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	}
	router := NewRouter(WithAdminRoutes(registrar))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}
