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

// OrderHandlers exposes checkout, payment verification and customer order endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithCheckoutIdempotency guards the order placement routes with the given middleware. It
// runs after authentication so keys are scoped to the caller.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}

	checkout := group
	if h.idempotency != nil {
		checkout = checkout.With(h.idempotency)
	}
	checkout.Post("/", h.placeOrder(domain.PaymentMethodCOD))
	checkout.Post("/stripe", h.placeOrder(domain.PaymentMethodStripe))
	checkout.Post("/razorpay", h.placeOrder(domain.PaymentMethodRazorpay))

	group.Post("/verify/stripe", h.verifyStripe)
	group.Post("/verify/razorpay", h.verifyRazorpay)
	group.Get("/mine", h.listMine)
	group.Post("/{orderID}/cancel", h.cancelOrder)
}

type placeOrderRequest struct {
	Items   []orderItemPayload `json:"items" validate:"required,min=1,dive"`
	Amount  int64              `json:"amount" validate:"gt=0"`
	Address addressPayload     `json:"address"`
}

type checkoutPayload struct {
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
	URL       string `json:"url,omitempty"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type placeOrderResponse struct {
	Order    orderResponse    `json:"order"`
	Checkout *checkoutPayload `json:"checkout,omitempty"`
}

func (h *OrderHandlers) placeOrder(method domain.PaymentMethod) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.orders == nil {
			serviceUnavailable(ctx, w, "order")
			return
		}
		identity, ok := requireIdentity(ctx, w)
		if !ok {
			return
		}

		var req placeOrderRequest
		if herr := decodeRequest(r, &req); herr != nil {
			httpx.WriteError(ctx, w, *herr)
			return
		}

		items := make([]domain.OrderLineItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, domain.OrderLineItem{
				ProductID: item.ProductID,
				Name:      item.Name,
				UnitPrice: item.Price,
				Quantity:  item.Quantity,
				Size:      item.Size,
			})
		}

		result, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
			UserID:         identity.UID,
			Items:          items,
			Amount:         req.Amount,
			Address:        domain.Address(req.Address),
			PaymentMethod:  method,
			IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}

		requestctx.Logger(ctx).Info("order placed",
			zap.String("orderId", result.Order.ID),
			zap.String("userId", observability.SanitizeUserID(identity.UID)),
			zap.String("paymentMethod", string(method)),
		)

		resp := placeOrderResponse{Order: newOrderResponse(result.Order)}
		if session := result.Checkout; session != nil {
			resp.Checkout = &checkoutPayload{
				Provider:  session.Provider,
				Reference: session.Reference,
				URL:       session.RedirectURL,
				Amount:    session.Amount,
				Currency:  session.Currency,
			}
		}
		httpx.WriteJSON(w, http.StatusCreated, resp)
	}
}

type verifyStripeRequest struct {
	OrderID   string `json:"orderId" validate:"required"`
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
}

type verifyRazorpayRequest struct {
	RazorpayOrderID string `json:"razorpayOrderId" validate:"required"`
}

type verifyPaymentResponse struct {
	OrderID   string `json:"orderId"`
	Confirmed bool   `json:"confirmed"`
	Abandoned bool   `json:"abandoned"`
}

func (h *OrderHandlers) verifyStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req verifyStripeRequest
	if herr := decodeRequest(r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}

	result, err := h.orders.VerifyStripe(ctx, services.VerifyStripeCommand{
		UserID:    identity.UID,
		OrderID:   req.OrderID,
		Success:   req.Success,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, verifyPaymentResponse(result))
}

func (h *OrderHandlers) verifyRazorpay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req verifyRazorpayRequest
	if herr := decodeRequest(r, &req); herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}

	result, err := h.orders.VerifyRazorpay(ctx, services.VerifyRazorpayCommand{
		UserID:          identity.UID,
		RazorpayOrderID: req.RazorpayOrderID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, verifyPaymentResponse(result))
}

func (h *OrderHandlers) listMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	page, limit, herr := parsePaging(r)
	if herr != nil {
		httpx.WriteError(ctx, w, *herr)
		return
	}

	result, err := h.orders.ListMine(ctx, services.MyOrdersQuery{UserID: identity.UID, Page: page, Limit: limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderPage(result))
}

type cancelOrderRequest struct {
	Note string `json:"note"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if herr := decodeRequest(r, &req); herr != nil {
			httpx.WriteError(ctx, w, *herr)
			return
		}
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
		Note:    req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}
