package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forever-store/api/internal/platform/auth"
	"github.com/forever-store/api/internal/platform/httpx"
	"github.com/forever-store/api/internal/services"
)

// TimelineHandlers exposes the read side of an order's status timeline to its owner and
// to operators.
type TimelineHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	timeline services.TimelineService
}

// NewTimelineHandlers constructs timeline handlers.
func NewTimelineHandlers(authn *auth.Authenticator, orders services.OrderService, timeline services.TimelineService) *TimelineHandlers {
	return &TimelineHandlers{authn: authn, orders: orders, timeline: timeline}
}

// Routes registers the timeline endpoints under /orders.
func (h *TimelineHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Get("/{orderID}/timeline", h.listTimeline)
	group.Get("/{orderID}/timeline/current", h.currentStatus)
}

type timelinePageResponse struct {
	OrderID string                  `json:"orderId"`
	Items   []timelineEntryResponse `json:"items"`
	Page    int                     `json:"page"`
	Limit   int                     `json:"limit"`
	Total   int                     `json:"total"`
}

func (h *TimelineHandlers) listTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	page, limit, herr := parsePaging(r)
	if herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	query := r.URL.Query()

	result, err := h.timeline.List(ctx, services.TimelineQuery{
		OrderID: orderID,
		Page:    page,
		Limit:   limit,
		Status:  strings.TrimSpace(query.Get("status")),
		Sort:    strings.TrimSpace(query.Get("sort")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]timelineEntryResponse, 0, len(result.Items))
	for _, entry := range result.Items {
		items = append(items, newTimelineEntryResponse(entry))
	}
	httpx.WriteJSON(w, http.StatusOK, timelinePageResponse{
		OrderID: result.OrderID,
		Items:   items,
		Page:    result.Page,
		Limit:   result.Limit,
		Total:   result.Total,
	})
}

func (h *TimelineHandlers) currentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	entry, err := h.timeline.Current(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newTimelineEntryResponse(entry))
}

// authorize lets operators read any timeline and customers only their own orders. A
// foreign order is reported as missing.
func (h *TimelineHandlers) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.orders == nil || h.timeline == nil {
		serviceUnavailable(ctx, w, "timeline")
		return "", false
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return "", false
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if identity.IsAdmin() {
		return orderID, true
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return "", false
	}
	if order.UserID != identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "Order not found", http.StatusNotFound))
		return "", false
	}
	return orderID, true
}
