package repositories

import (
	"context"

	domain "github.com/forever-store/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Timeline() TimelineRepository
	Products() ProductStockRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Repositories invoked
// with the callback context participate in the same transaction; all reads must be issued
// before the first write.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows order listings. Zero values disable a filter.
type OrderListFilter struct {
	UserID        string
	Status        *domain.OrderStatus
	PaymentMethod domain.PaymentMethod
	Page          int
	Limit         int
}

// OrderRepository persists order aggregates.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	// FindByID returns a RepositoryError with IsNotFound when the order is absent.
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// List returns orders newest first.
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
}

// TimelineFilter narrows a timeline listing for one order.
type TimelineFilter struct {
	OrderID string
	Status  *domain.OrderStatus
	Sort    domain.SortOrder
	Page    int
	Limit   int
}

// TimelineRepository stores append-only order timeline entries.
type TimelineRepository interface {
	Append(ctx context.Context, entry domain.TimelineEntry) error
	// Latest returns the entry with the highest sequence for the order, or a RepositoryError
	// with IsNotFound when the order has no entries.
	Latest(ctx context.Context, orderID string) (domain.TimelineEntry, error)
	List(ctx context.Context, filter TimelineFilter) (domain.Page[domain.TimelineEntry], error)
	DeleteByOrder(ctx context.Context, orderID string) (int, error)
}

// ProductStockRepository reads and writes the per-size stock embedded in catalog products.
type ProductStockRepository interface {
	// FindStock loads the given products. Unknown IDs are omitted from the result.
	FindStock(ctx context.Context, productIDs []string) (map[string]domain.ProductStock, error)
	SaveStock(ctx context.Context, product domain.ProductStock) error
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
