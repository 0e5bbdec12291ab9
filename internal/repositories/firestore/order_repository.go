package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/forever-store/api/internal/domain"
	pfirestore "github.com/forever-store/api/internal/platform/firestore"
	"github.com/forever-store/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders in the top-level orders collection.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)}, nil
}

// Insert creates the order document. An existing ID is reported as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, newOrderDocument(order))
}

// Update replaces the stored order.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.base.Set(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.base.Delete(ctx, orderID)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// List pages orders newest first. The total comes from a count aggregation outside any
// transaction.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	where := func(q firestore.Query) firestore.Query {
		if userID := strings.TrimSpace(filter.UserID); userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if filter.Status != nil {
			q = q.Where("status", "==", filter.Status.String())
		}
		if filter.PaymentMethod != "" {
			q = q.Where("paymentMethod", "==", string(filter.PaymentMethod))
		}
		return q
	}

	total, err := r.base.Count(ctx, where)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = where(q).OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			q = q.Offset(max(filter.Page-1, 0) * filter.Limit).Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		items = append(items, order)
	}
	return domain.Page[domain.Order]{
		Items: items,
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
	}, nil
}

type orderDocument struct {
	UserID           string              `firestore:"userId"`
	Items            []orderItemDocument `firestore:"items"`
	Amount           int64               `firestore:"amount"`
	Currency         string              `firestore:"currency"`
	Address          addressDocument     `firestore:"address"`
	PaymentMethod    string              `firestore:"paymentMethod"`
	PaymentConfirmed bool                `firestore:"payment"`
	PaymentReference string              `firestore:"paymentRef,omitempty"`
	StockApplied     bool                `firestore:"stockApplied"`
	Status           string              `firestore:"status"`
	TimelineSeq      int64               `firestore:"timelineSeq"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	UnitPrice int64  `firestore:"price"`
	Quantity  int    `firestore:"quantity"`
	Size      string `firestore:"size"`
}

type addressDocument struct {
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Street    string `firestore:"street"`
	City      string `firestore:"city"`
	State     string `firestore:"state"`
	Zipcode   string `firestore:"zipcode"`
	Country   string `firestore:"country"`
	Phone     string `firestore:"phone"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument(item))
	}
	return orderDocument{
		UserID:           order.UserID,
		Items:            items,
		Amount:           order.Amount,
		Currency:         order.Currency,
		Address:          addressDocument(order.Address),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentConfirmed: order.PaymentConfirmed,
		PaymentReference: order.PaymentReference,
		StockApplied:     order.StockApplied,
		Status:           order.Status.String(),
		TimelineSeq:      order.TimelineSeq,
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	status, ok := domain.ParseOrderStatus(d.Status)
	if !ok {
		return domain.Order{}, fmt.Errorf("firestore: order %s has unknown status %q", id, d.Status)
	}
	items := make([]domain.OrderLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderLineItem(item))
	}
	return domain.Order{
		ID:               id,
		UserID:           d.UserID,
		Items:            items,
		Amount:           d.Amount,
		Currency:         d.Currency,
		Address:          domain.Address(d.Address),
		PaymentMethod:    domain.PaymentMethod(d.PaymentMethod),
		PaymentConfirmed: d.PaymentConfirmed,
		PaymentReference: d.PaymentReference,
		StockApplied:     d.StockApplied,
		Status:           status,
		TimelineSeq:      d.TimelineSeq,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}
