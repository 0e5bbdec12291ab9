package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider keys used when registering gateways with the Manager.
const (
	ProviderStripe   = "stripe"
	ProviderRazorpay = "razorpay"
)

// Status enumerates the normalised payment states shared across gateways.
type Status string

const (
	// StatusPending indicates the customer has not completed payment yet.
	StatusPending Status = "pending"
	// StatusPaid indicates the gateway reports the payment as settled.
	StatusPaid Status = "paid"
	// StatusFailed indicates the session expired or the gateway rejected the payment.
	StatusFailed Status = "failed"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a gateway.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidRequest is returned when a checkout request is missing required data.
	ErrInvalidRequest = errors.New("payments: invalid request")
)

// LineItem is a single priced row shown on the hosted checkout page. Amount is the unit
// price in minor units.
type LineItem struct {
	Name     string
	Amount   int64
	Quantity int64
}

// CheckoutRequest describes the payment the gateway should collect for one order.
// Amounts are in minor units of Currency.
type CheckoutRequest struct {
	OrderID        string
	Currency       string
	Amount         int64
	Items          []LineItem
	DeliveryCharge int64
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	Metadata       map[string]string
}

// CheckoutSession is what the client needs to continue payment with the gateway.
type CheckoutSession struct {
	Provider    string
	Reference   string
	RedirectURL string
	Amount      int64
	Currency    string
}

// PaymentDetails normalises the gateway view of a payment. OrderID is the store order the
// payment was opened for (Stripe client reference, Razorpay receipt).
type PaymentDetails struct {
	Provider  string
	Reference string
	OrderID   string
	Status    Status
	Amount    int64
	Currency  string
}

// Paid reports whether the gateway considers the payment settled.
func (d PaymentDetails) Paid() bool {
	return d.Status == StatusPaid
}

// Gateway is implemented by each payment service provider adapter.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	LookupPayment(ctx context.Context, reference string) (PaymentDetails, error)
}

// Manager routes calls to the gateway registered for a provider key.
type Manager struct {
	gateways map[string]Gateway
}

// NewManager constructs a Manager over the supplied gateways.
func NewManager(gateways map[string]Gateway) (*Manager, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	registered := make(map[string]Gateway, len(gateways))
	for k, v := range gateways {
		key := normaliseProvider(k)
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid gateway registration for key %q", k)
		}
		registered[key] = v
	}
	return &Manager{gateways: registered}, nil
}

// Supports reports whether a gateway is registered for provider.
func (m *Manager) Supports(provider string) bool {
	_, err := m.resolve(provider)
	return err == nil
}

// CreateCheckout opens a payment with the named gateway.
func (m *Manager) CreateCheckout(ctx context.Context, provider string, req CheckoutRequest) (CheckoutSession, error) {
	gateway, err := m.resolve(provider)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := gateway.CreateCheckout(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	session.Provider = normaliseProvider(provider)
	return session, nil
}

// LookupPayment fetches the current gateway state of a payment reference.
func (m *Manager) LookupPayment(ctx context.Context, provider, reference string) (PaymentDetails, error) {
	gateway, err := m.resolve(provider)
	if err != nil {
		return PaymentDetails{}, err
	}
	if strings.TrimSpace(reference) == "" {
		return PaymentDetails{}, fmt.Errorf("%w: payment reference is required", ErrInvalidRequest)
	}
	details, err := gateway.LookupPayment(ctx, reference)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = normaliseProvider(provider)
	return details, nil
}

func (m *Manager) resolve(provider string) (Gateway, error) {
	if m == nil || len(m.gateways) == 0 {
		return nil, ErrUnsupportedProvider
	}
	gateway, ok := m.gateways[normaliseProvider(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return gateway, nil
}

func normaliseProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
