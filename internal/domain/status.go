package domain

import (
	"fmt"
	"strings"
)

// OrderStatus is the closed set of fulfilment states an order moves through. The
// numeric value is the status rank.
type OrderStatus int

const (
	StatusOrderPlaced OrderStatus = iota
	StatusPacking
	StatusOrderShipped
	StatusOutForDelivery
	StatusDelivered
	StatusCancelled
)

// CancelCutoff is the first status at which a customer or operator can no longer cancel.
const CancelCutoff = StatusOrderShipped

var statusLabels = [...]string{
	StatusOrderPlaced:    "Order Placed",
	StatusPacking:        "Packing",
	StatusOrderShipped:   "Order Shipped",
	StatusOutForDelivery: "Out for Delivery",
	StatusDelivered:      "Delivered",
	StatusCancelled:      "Cancelled",
}

var statusByLabel = func() map[string]OrderStatus {
	m := make(map[string]OrderStatus, len(statusLabels))
	for i, label := range statusLabels {
		m[label] = OrderStatus(i)
	}
	return m
}()

// ParseOrderStatus resolves a status label. Matching is exact apart from surrounding whitespace.
func ParseOrderStatus(label string) (OrderStatus, bool) {
	status, ok := statusByLabel[strings.TrimSpace(label)]
	return status, ok
}

// OrderStatuses returns every status in rank order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(statusLabels))
	for i := range statusLabels {
		out[i] = OrderStatus(i)
	}
	return out
}

// IsValid reports whether s is a member of the vocabulary.
func (s OrderStatus) IsValid() bool {
	return s >= StatusOrderPlaced && int(s) < len(statusLabels)
}

// Rank returns the position of the status in the fulfilment flow.
func (s OrderStatus) Rank() int {
	return int(s)
}

// IsTerminal reports whether no further transition is permitted from s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// RequiresShipment reports whether courier details accompany the status.
func (s OrderStatus) RequiresShipment() bool {
	return s == StatusOrderShipped || s == StatusOutForDelivery
}

func (s OrderStatus) String() string {
	if !s.IsValid() {
		return "Unknown"
	}
	return statusLabels[s]
}

// MarshalText encodes the status as its label.
func (s OrderStatus) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("domain: invalid order status %d", int(s))
	}
	return []byte(statusLabels[s]), nil
}

// UnmarshalText decodes a status label.
func (s *OrderStatus) UnmarshalText(text []byte) error {
	parsed, ok := ParseOrderStatus(string(text))
	if !ok {
		return fmt.Errorf("domain: invalid order status %q", string(text))
	}
	*s = parsed
	return nil
}
