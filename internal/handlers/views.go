package handlers

import (
	"time"

	domain "github.com/forever-store/api/internal/domain"
)

type addressPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" validate:"omitempty,email"`
	Street    string `json:"street" validate:"required"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state"`
	Zipcode   string `json:"zipcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

type orderItemPayload struct {
	ProductID string `json:"productId" validate:"required"`
	Name      string `json:"name"`
	Price     int64  `json:"price" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Size      string `json:"size" validate:"required"`
}

type shipmentPayload struct {
	Courier  string `json:"courier"`
	AWB      string `json:"awb"`
	Location string `json:"location"`
}

type orderResponse struct {
	ID            string             `json:"id"`
	UserID        string             `json:"userId"`
	Items         []orderItemPayload `json:"items"`
	Amount        int64              `json:"amount"`
	Currency      string             `json:"currency"`
	Address       addressPayload     `json:"address"`
	PaymentMethod string             `json:"paymentMethod"`
	Payment       bool               `json:"payment"`
	Status        string             `json:"status"`
	TimelineSeq   int64              `json:"timelineSeq"`
	CreatedAt     string             `json:"createdAt"`
	UpdatedAt     string             `json:"updatedAt"`
}

type timelineEntryResponse struct {
	ID        string           `json:"id"`
	OrderID   string           `json:"orderId"`
	Seq       int64            `json:"seq"`
	Status    string           `json:"status"`
	Note      string           `json:"note,omitempty"`
	ActorType string           `json:"actorType"`
	ActorID   string           `json:"actorId,omitempty"`
	Meta      *shipmentPayload `json:"meta,omitempty"`
	CreatedAt string           `json:"createdAt"`
}

type pageResponse[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

func newOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
			Size:      item.Size,
		})
	}
	return orderResponse{
		ID:            order.ID,
		UserID:        order.UserID,
		Items:         items,
		Amount:        order.Amount,
		Currency:      order.Currency,
		Address:       addressPayload(order.Address),
		PaymentMethod: string(order.PaymentMethod),
		Payment:       order.PaymentConfirmed,
		Status:        order.Status.String(),
		TimelineSeq:   order.TimelineSeq,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}

func newTimelineEntryResponse(entry domain.TimelineEntry) timelineEntryResponse {
	resp := timelineEntryResponse{
		ID:        entry.ID,
		OrderID:   entry.OrderID,
		Seq:       entry.Seq,
		Status:    entry.Status.String(),
		Note:      entry.Note,
		ActorType: string(entry.ActorType),
		ActorID:   entry.ActorID,
		CreatedAt: formatTime(entry.CreatedAt),
	}
	if entry.Meta != nil {
		meta := shipmentPayload(*entry.Meta)
		resp.Meta = &meta
	}
	return resp
}

func newOrderPage(page domain.Page[domain.Order]) pageResponse[orderResponse] {
	items := make([]orderResponse, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, newOrderResponse(order))
	}
	return pageResponse[orderResponse]{Items: items, Page: page.Page, Limit: page.Limit, Total: page.Total}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
