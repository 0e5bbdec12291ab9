package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayGatewayConfig configures the RazorpayGateway.
type RazorpayGatewayConfig struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     GatewayLogger
}

// RazorpayGateway creates Razorpay orders and reads back their settlement status.
type RazorpayGateway struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
	logger    GatewayLogger
}

// RazorpayError is the error envelope returned by the Razorpay API.
type RazorpayError struct {
	StatusCode  int
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *RazorpayError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("razorpay: %s (%d): %s", e.Code, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("razorpay: unexpected status %d", e.StatusCode)
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// NewRazorpayGateway constructs a Razorpay gateway authenticating with the key pair.
func NewRazorpayGateway(cfg RazorpayGatewayConfig) (*RazorpayGateway, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RazorpayGateway{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   baseURL,
		client:    httpClient,
		logger:    logger,
	}, nil
}

// CreateCheckout creates a Razorpay order for the full amount with the store order id as
// receipt. The client completes payment with the returned reference.
func (g *RazorpayGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return CheckoutSession{}, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return CheckoutSession{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	body := map[string]any{
		"amount":   req.Amount,
		"currency": strings.ToUpper(strings.TrimSpace(req.Currency)),
		"receipt":  req.OrderID,
	}
	if len(req.Metadata) > 0 {
		body["notes"] = req.Metadata
	}

	var order razorpayOrder
	if err := g.do(ctx, http.MethodPost, "/orders", body, &order); err != nil {
		return CheckoutSession{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	g.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"razorpayOrderId": order.ID,
		"orderId":         req.OrderID,
	})

	return CheckoutSession{
		Provider:  ProviderRazorpay,
		Reference: order.ID,
		Amount:    order.Amount,
		Currency:  strings.ToLower(order.Currency),
	}, nil
}

// LookupPayment fetches a Razorpay order by id.
func (g *RazorpayGateway) LookupPayment(ctx context.Context, reference string) (PaymentDetails, error) {
	var order razorpayOrder
	if err := g.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(reference), nil, &order); err != nil {
		return PaymentDetails{}, fmt.Errorf("razorpay: fetch order: %w", err)
	}
	status := StatusPending
	if order.Status == "paid" {
		status = StatusPaid
	}
	return PaymentDetails{
		Provider:  ProviderRazorpay,
		Reference: order.ID,
		OrderID:   order.Receipt,
		Status:    status,
		Amount:    order.Amount,
		Currency:  strings.ToLower(order.Currency),
	}, nil
}

func (g *RazorpayGateway) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &RazorpayError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error RazorpayError `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		return apiErr
	}
	return json.Unmarshal(data, out)
}
