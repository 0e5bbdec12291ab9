package services

import (
	"context"
	"time"

	domain "github.com/forever-store/api/internal/domain"
	"github.com/forever-store/api/internal/payments"
)

// Event types published for the notification workers.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderService exposes checkout, payment confirmation and status changes.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (domain.Order, error)
	AbandonPayment(ctx context.Context, cmd AbandonPaymentCommand) error
	VerifyStripe(ctx context.Context, cmd VerifyStripeCommand) (VerifyPaymentResult, error)
	VerifyRazorpay(ctx context.Context, cmd VerifyRazorpayCommand) (VerifyPaymentResult, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListMine(ctx context.Context, query MyOrdersQuery) (domain.Page[domain.Order], error)
	ListAll(ctx context.Context, query OrderListQuery) (domain.Page[domain.Order], error)
}

// TimelineService maintains the append-only status ledger of each order.
type TimelineService interface {
	// Append records a status entry after the backward-transition guard. Within a unit of
	// work it reads the latest entry before writing.
	Append(ctx context.Context, cmd AppendTimelineCommand) (domain.TimelineEntry, error)
	// Seed writes the first entry of a newly created order without reading the ledger.
	Seed(ctx context.Context, order domain.Order) (domain.TimelineEntry, error)
	List(ctx context.Context, query TimelineQuery) (TimelinePage, error)
	Current(ctx context.Context, orderID string) (domain.TimelineEntry, error)
	// Purge removes every entry of an order. Used only when an unpaid order is abandoned.
	Purge(ctx context.Context, orderID string) (int, error)
}

// StockAdjuster applies the per-size stock decrement for an order's items.
type StockAdjuster interface {
	Apply(ctx context.Context, items []domain.OrderLineItem) (StockAdjustment, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent is the notification payload. Amounts are in minor units; AmountDisplay is the
// localised rendering used in email bodies.
type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	UserID         string    `json:"userId"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	Note           string    `json:"note,omitempty"`
	ActorType      string    `json:"actorType,omitempty"`
	PaymentMethod  string    `json:"paymentMethod,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	AmountDisplay  string    `json:"amountDisplay,omitempty"`
	Courier        string    `json:"courier,omitempty"`
	AWB            string    `json:"awb,omitempty"`
	Location       string    `json:"location,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// OrderMetrics records lifecycle counters.
type OrderMetrics interface {
	StatusTransition(ctx context.Context, from, to, actor string)
	StatusRejected(ctx context.Context, reason string)
	StockClamped(ctx context.Context, productID string)
}

// PaymentGateways opens and inspects gateway payments by provider key.
type PaymentGateways interface {
	CreateCheckout(ctx context.Context, provider string, req payments.CheckoutRequest) (payments.CheckoutSession, error)
	LookupPayment(ctx context.Context, provider, reference string) (payments.PaymentDetails, error)
}

// PlaceOrderCommand is a checkout request. UnitPrice and Amount are in minor units.
type PlaceOrderCommand struct {
	UserID         string
	Items          []domain.OrderLineItem
	Amount         int64
	Address        domain.Address
	PaymentMethod  domain.PaymentMethod
	IdempotencyKey string
}

// PlaceOrderResult carries the created order and, for gateway methods, the session the
// client continues payment with.
type PlaceOrderResult struct {
	Order    domain.Order
	Checkout *payments.CheckoutSession
}

// ConfirmPaymentCommand marks a gateway payment as settled. An empty UserID skips the
// ownership check.
type ConfirmPaymentCommand struct {
	OrderID string
	UserID  string
}

// AbandonPaymentCommand deletes an unpaid gateway order.
type AbandonPaymentCommand struct {
	OrderID string
	UserID  string
}

// VerifyStripeCommand is the redirect result of a Stripe Checkout session.
type VerifyStripeCommand struct {
	UserID    string
	OrderID   string
	Success   bool
	SessionID string
}

// VerifyRazorpayCommand references the Razorpay order the client paid.
type VerifyRazorpayCommand struct {
	UserID          string
	RazorpayOrderID string
}

// VerifyPaymentResult reports the outcome of a payment verification.
type VerifyPaymentResult struct {
	OrderID   string
	Confirmed bool
	Abandoned bool
}

// UpdateStatusCommand is an operator status change.
type UpdateStatusCommand struct {
	OrderID string
	Status  string
	Note    string
	ActorID string
	Meta    *domain.ShipmentMeta
}

// CancelOrderCommand is a customer cancellation.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Note    string
}

// MyOrdersQuery pages the caller's orders.
type MyOrdersQuery struct {
	UserID string
	Page   int
	Limit  int
}

// OrderListQuery filters the operator order list. Empty strings disable a filter.
type OrderListQuery struct {
	Status        string
	PaymentMethod string
	Page          int
	Limit         int
}

// AppendTimelineCommand describes a ledger entry.
type AppendTimelineCommand struct {
	OrderID   string
	Status    domain.OrderStatus
	Note      string
	ActorType domain.ActorType
	ActorID   string
	Meta      *domain.ShipmentMeta
}

// TimelineQuery pages one order's timeline. Status and Sort are raw query values.
type TimelineQuery struct {
	OrderID string
	Page    int
	Limit   int
	Status  string
	Sort    string
}

// TimelinePage is a page of timeline entries.
type TimelinePage struct {
	OrderID string
	Page    int
	Limit   int
	Total   int
	Items   []domain.TimelineEntry
}

// StockAdjustment summarises one Apply call.
type StockAdjustment struct {
	Updated []string
	Skipped int
	Clamped int
}
