package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// GatewayLogger matches the structured event logger used across services.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   GatewayLogger

	sessions stripeSessionAPI
}

// StripeGateway opens hosted Stripe Checkout sessions and reads back their payment status.
type StripeGateway struct {
	sessions stripeSessionAPI
	logger   GatewayLogger
}

// NewStripeGateway constructs a Stripe gateway using the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	sessions := cfg.sessions
	if sessions == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{sessions: sessions, logger: logger}, nil
}

// CreateCheckout creates a payment-mode Checkout session with one line per order item plus
// the delivery charge. The order id travels as the client reference.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return CheckoutSession{}, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}
	if len(req.Items) == 0 {
		return CheckoutSession{}, fmt.Errorf("%w: at least one line item is required", ErrInvalidRequest)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	params.Metadata = map[string]string{"orderId": req.OrderID}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items)+1)
	for _, item := range req.Items {
		lineItems = append(lineItems, stripeLineItem(currency, item.Name, item.Amount, max(item.Quantity, 1)))
	}
	if req.DeliveryCharge > 0 {
		lineItems = append(lineItems, stripeLineItem(currency, "Delivery Charges", req.DeliveryCharge, 1))
	}
	params.LineItems = lineItems

	session, err := g.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	g.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"orderId":   req.OrderID,
		"currency":  currency,
	})

	return CheckoutSession{
		Provider:    ProviderStripe,
		Reference:   session.ID,
		RedirectURL: session.URL,
		Amount:      session.AmountTotal,
		Currency:    currency,
	}, nil
}

// LookupPayment retrieves a Checkout session by id.
func (g *StripeGateway) LookupPayment(ctx context.Context, reference string) (PaymentDetails, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	session, err := g.sessions.Get(reference, params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: lookup checkout session: %w", err)
	}
	return stripePaymentDetails(session), nil
}

func stripeLineItem(currency, name string, unitAmount, quantity int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(quantity),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(unitAmount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
		},
	}
}

func stripePaymentDetails(session *stripe.CheckoutSession) PaymentDetails {
	if session == nil {
		return PaymentDetails{Provider: ProviderStripe, Status: StatusPending}
	}
	status := StatusPending
	switch {
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		session.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		status = StatusPaid
	case session.Status == stripe.CheckoutSessionStatusExpired:
		status = StatusFailed
	}
	orderID := session.ClientReferenceID
	if orderID == "" {
		orderID = session.Metadata["orderId"]
	}
	return PaymentDetails{
		Provider:  ProviderStripe,
		Reference: session.ID,
		OrderID:   orderID,
		Status:    status,
		Amount:    session.AmountTotal,
		Currency:  strings.ToLower(string(session.Currency)),
	}
}
