package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/forever-store/api/internal/domain"
	"github.com/forever-store/api/internal/platform/auth"
	"github.com/forever-store/api/internal/platform/httpx"
	"github.com/forever-store/api/internal/platform/observability"
	"github.com/forever-store/api/internal/platform/requestctx"
	"github.com/forever-store/api/internal/services"
)

// AdminOrderHandlers exposes operator order endpoints.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs operator handlers restricted to the admin role.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders}
}

// Routes registers endpoints under /admin.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	group.Get("/orders", h.listOrders)
	group.Post("/orders/{orderID}/status", h.updateStatus)
}

type updateStatusRequest struct {
	Status string           `json:"status" validate:"required"`
	Note   string           `json:"note"`
	Meta   *shipmentPayload `json:"meta"`
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req updateStatusRequest
	if herr := decodeRequest(r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}

	var meta *domain.ShipmentMeta
	if req.Meta != nil {
		m := domain.ShipmentMeta(*req.Meta)
		meta = &m
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  req.Status,
		Note:    req.Note,
		ActorID: identity.UID,
		Meta:    meta,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	requestctx.Logger(ctx).Info("order status updated",
		zap.String("orderId", order.ID),
		zap.String("status", order.Status.String()),
		zap.String("actorId", observability.SanitizeUserID(identity.UID)),
	)
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	page, limit, herr := parsePaging(r)
	if herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}
	query := r.URL.Query()

	result, err := h.orders.ListAll(ctx, services.OrderListQuery{
		Status:        strings.TrimSpace(query.Get("status")),
		PaymentMethod: strings.TrimSpace(query.Get("paymentMethod")),
		Page:          page,
		Limit:         limit,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderPage(result))
}
