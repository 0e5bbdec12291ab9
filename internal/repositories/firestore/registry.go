package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/forever-store/api/internal/platform/firestore"
	"github.com/forever-store/api/internal/repositories"
)

// Registry wires the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	*pfirestore.UnitOfWork

	orders   *OrderRepository
	timeline *TimelineRepository
	products *ProductStockRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository over one provider. health may be nil when readiness
// probes are not wired.
func NewRegistry(provider *pfirestore.Provider, uow *pfirestore.UnitOfWork, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if uow == nil {
		uow = pfirestore.NewUnitOfWork(provider)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	timeline, err := NewTimelineRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductStockRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:   provider,
		UnitOfWork: uow,
		orders:     orders,
		timeline:   timeline,
		products:   products,
		health:     health,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) Timeline() repositories.TimelineRepository { return r.timeline }
func (r *Registry) Products() repositories.ProductStockRepository { return r.products }
func (r *Registry) Health() repositories.HealthRepository { return r.health }
func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }
