package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	domain "github.com/forever-store/api/internal/domain"
	"github.com/forever-store/api/internal/platform/auth"
	"github.com/forever-store/api/internal/services"
)

type stubTimelineService struct {
	listFn    func(context.Context, services.TimelineQuery) (services.TimelinePage, error)
	currentFn func(context.Context, string) (domain.TimelineEntry, error)
}

func (s *stubTimelineService) Append(context.Context, services.AppendTimelineCommand) (domain.TimelineEntry, error) {
	return domain.TimelineEntry{}, errors.New("not implemented")
}

func (s *stubTimelineService) Seed(context.Context, domain.Order) (domain.TimelineEntry, error) {
	return domain.TimelineEntry{}, errors.New("not implemented")
}

func (s *stubTimelineService) List(ctx context.Context, query services.TimelineQuery) (services.TimelinePage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return services.TimelinePage{OrderID: query.OrderID}, nil
}

func (s *stubTimelineService) Current(ctx context.Context, orderID string) (domain.TimelineEntry, error) {
	if s.currentFn != nil {
		return s.currentFn(ctx, orderID)
	}
	return domain.TimelineEntry{}, errors.New("not implemented")
}

func (s *stubTimelineService) Purge(context.Context, string) (int, error) {
	return 0, errors.New("not implemented")
}

func timelineRouter(handler *TimelineHandlers, uid string, roles ...string) chi.Router {
	router := chi.NewRouter()
	router.Use(withIdentity(uid, roles...))
	router.Route("/orders", handler.Routes)
	return router
}

var shippedEntry = domain.TimelineEntry{
	ID:        "tle_3",
	OrderID:   "ord_1",
	Seq:       3,
	Status:    domain.StatusOrderShipped,
	Note:      "left warehouse",
	ActorType: domain.ActorAdmin,
	ActorID:   "admin-1",
	Meta:      &domain.ShipmentMeta{Courier: "DHL", AWB: "AWB123", Location: "Hub A"},
	CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
}

func ownedOrders(owner string) *stubOrderService {
	return &stubOrderService{
		getFn: func(_ context.Context, orderID string) (domain.Order, error) {
			order := sampleOrder
			order.ID = orderID
			order.UserID = owner
			return order, nil
		},
	}
}

func TestTimelineHandlersListForOwner(t *testing.T) {
	var captured services.TimelineQuery
	timeline := &stubTimelineService{
		listFn: func(_ context.Context, query services.TimelineQuery) (services.TimelinePage, error) {
			captured = query
			return services.TimelinePage{OrderID: query.OrderID, Page: 1, Limit: 20, Total: 1, Items: []domain.TimelineEntry{shippedEntry}}, nil
		},
	}
	router := timelineRouter(NewTimelineHandlers(nil, ownedOrders("user-1"), timeline), "user-1", auth.RoleUser)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_1/timeline?status=Order%20Shipped&sort=desc", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if diff := cmp.Diff(services.TimelineQuery{OrderID: "ord_1", Status: "Order Shipped", Sort: "desc"}, captured); diff != "" {
		t.Fatalf("unexpected query (-want +got):\n%s", diff)
	}

	body := decodeBody(t, rr)
	if body["orderId"] != "ord_1" || body["total"] != float64(1) {
		t.Fatalf("unexpected page %v", body)
	}
	entry := body["items"].([]any)[0].(map[string]any)
	want := map[string]any{
		"id":        "tle_3",
		"orderId":   "ord_1",
		"seq":       float64(3),
		"status":    "Order Shipped",
		"note":      "left warehouse",
		"actorType": "admin",
		"actorId":   "admin-1",
		"meta":      map[string]any{"courier": "DHL", "awb": "AWB123", "location": "Hub A"},
		"createdAt": "2026-03-02T10:00:00Z",
	}
	if diff := cmp.Diff(want, entry); diff != "" {
		t.Fatalf("unexpected entry (-want +got):\n%s", diff)
	}
}

func TestTimelineHandlersHideForeignOrders(t *testing.T) {
	timeline := &stubTimelineService{
		listFn: func(context.Context, services.TimelineQuery) (services.TimelinePage, error) {
			t.Fatalf("timeline must not be read for a foreign order")
			return services.TimelinePage{}, nil
		},
	}
	router := timelineRouter(NewTimelineHandlers(nil, ownedOrders("someone-else"), timeline), "user-1", auth.RoleUser)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_1/timeline", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "order_not_found" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestTimelineHandlersAdminSkipsOwnership(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			t.Fatalf("admin reads must not look up the order")
			return domain.Order{}, nil
		},
	}
	timeline := &stubTimelineService{
		currentFn: func(_ context.Context, orderID string) (domain.TimelineEntry, error) {
			entry := shippedEntry
			entry.OrderID = orderID
			return entry, nil
		},
	}
	router := timelineRouter(NewTimelineHandlers(nil, orders, timeline), "admin-1", auth.RoleAdmin)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_9/timeline/current", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["orderId"] != "ord_9" || body["status"] != "Order Shipped" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestTimelineHandlersErrors(t *testing.T) {
	timeline := &stubTimelineService{
		listFn: func(context.Context, services.TimelineQuery) (services.TimelinePage, error) {
			return services.TimelinePage{}, &services.OrderError{Kind: services.ErrInvalidStatus, Message: `Invalid status "Lost"`}
		},
		currentFn: func(context.Context, string) (domain.TimelineEntry, error) {
			return domain.TimelineEntry{}, &services.OrderError{Kind: services.ErrTimelineNotFound, Message: "No timeline entries for order"}
		},
	}
	router := timelineRouter(NewTimelineHandlers(nil, ownedOrders("user-1"), timeline), "user-1", auth.RoleUser)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_1/timeline?status=Lost", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_1/timeline/current", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "timeline_not_found" {
		t.Fatalf("unexpected body %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_1/timeline?page=-1", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", rr.Code)
	}
}

func TestTimelineHandlersMissingOrder(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, &services.OrderError{Kind: services.ErrOrderNotFound, Message: "Order not found"}
		},
	}
	router := timelineRouter(NewTimelineHandlers(nil, orders, &stubTimelineService{}), "user-1", auth.RoleUser)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/missing/timeline", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
