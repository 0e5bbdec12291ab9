package domain

import (
	"time"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// PaymentMethod enumerates the checkout payment options.
type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "COD"
	PaymentMethodStripe   PaymentMethod = "Stripe"
	PaymentMethodRazorpay PaymentMethod = "Razorpay"
)

// SettledAtPlacement reports whether the method needs no gateway confirmation before
// stock is committed.
func (m PaymentMethod) SettledAtPlacement() bool {
	return m == PaymentMethodCOD
}

// IsValid reports whether the method is supported.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodStripe, PaymentMethodRazorpay:
		return true
	default:
		return false
	}
}

// ActorType identifies who caused a timeline entry.
type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorAdmin  ActorType = "admin"
	ActorUser   ActorType = "user"
)

// IsValid reports whether the actor type is supported.
func (a ActorType) IsValid() bool {
	switch a {
	case ActorSystem, ActorAdmin, ActorUser:
		return true
	default:
		return false
	}
}

// Address is the shipping address captured at checkout.
type Address struct {
	FirstName string
	LastName  string
	Email     string
	Street    string
	City      string
	State     string
	Zipcode   string
	Country   string
	Phone     string
}

// OrderLineItem is copied by value from the cart at checkout. UnitPrice is in minor units.
type OrderLineItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	Size      string
}

// Order is the customer order aggregate.
type Order struct {
	ID               string
	UserID           string
	Items            []OrderLineItem
	Amount           int64
	Currency         string
	Address          Address
	PaymentMethod    PaymentMethod
	PaymentConfirmed bool
	PaymentReference string
	StockApplied     bool
	Status           OrderStatus
	TimelineSeq      int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ShipmentMeta carries courier details for shipping statuses.
type ShipmentMeta struct {
	Courier  string
	AWB      string
	Location string
}

// Complete reports whether every shipment field is present.
func (m ShipmentMeta) Complete() bool {
	return m.Courier != "" && m.AWB != "" && m.Location != ""
}

// IsZero reports whether no shipment field is set.
func (m ShipmentMeta) IsZero() bool {
	return m.Courier == "" && m.AWB == "" && m.Location == ""
}

// TimelineEntry is a single append-only status record for an order.
type TimelineEntry struct {
	ID        string
	OrderID   string
	Seq       int64
	Status    OrderStatus
	Note      string
	ActorType ActorType
	ActorID   string
	Meta      *ShipmentMeta
	CreatedAt time.Time
}

// SizeStock is the per-size stock counter embedded in a product.
type SizeStock struct {
	Size  string
	Stock int
}

// ProductStock is the stock-bearing projection of a catalog product.
type ProductStock struct {
	ID    string
	Name  string
	Sizes []SizeStock
}

// Page is an offset-paged result with the total match count.
type Page[T any] struct {
	Items []T
	Page  int
	Limit int
	Total int
}
