package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	domain "github.com/forever-store/api/internal/domain"
	"github.com/forever-store/api/internal/repositories"
)

// StockAdjusterDeps bundles collaborators for the stock adjuster.
type StockAdjusterDeps struct {
	Products repositories.ProductStockRepository
	Metrics  OrderMetrics
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type stockAdjuster struct {
	products repositories.ProductStockRepository
	metrics  OrderMetrics
	logger   func(context.Context, string, map[string]any)
}

// NewStockAdjuster constructs a StockAdjuster.
func NewStockAdjuster(deps StockAdjusterDeps) (StockAdjuster, error) {
	if deps.Products == nil {
		return nil, errors.New("stock adjuster: product repository is required")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &stockAdjuster{products: deps.Products, metrics: metrics, logger: logger}, nil
}

// Apply decrements per-size stock by each item's quantity, flooring at zero. Unknown
// products and sizes are skipped. Every product is read before the first write so the call
// can run inside a Firestore transaction; several items of one product become one write.
func (a *stockAdjuster) Apply(ctx context.Context, items []domain.OrderLineItem) (StockAdjustment, error) {
	var result StockAdjustment
	if len(items) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	products, err := a.products.FindStock(ctx, ids)
	if err != nil {
		return result, mapRepositoryError(err, nil)
	}

	touched := make([]string, 0, len(ids))
	for _, item := range items {
		product, ok := products[strings.TrimSpace(item.ProductID)]
		if !ok || item.Quantity <= 0 {
			result.Skipped++
			continue
		}
		idx := slices.IndexFunc(product.Sizes, func(s domain.SizeStock) bool { return s.Size == item.Size })
		if idx < 0 {
			result.Skipped++
			continue
		}
		remaining := product.Sizes[idx].Stock - item.Quantity
		if remaining < 0 {
			remaining = 0
			result.Clamped++
			a.metrics.StockClamped(ctx, product.ID)
			a.logger(ctx, "order.stock.clamped", map[string]any{
				"productId": product.ID,
				"size":      item.Size,
				"requested": item.Quantity,
				"available": product.Sizes[idx].Stock,
			})
		}
		product.Sizes[idx].Stock = remaining
		products[product.ID] = product
		if !slices.Contains(touched, product.ID) {
			touched = append(touched, product.ID)
		}
	}

	for _, id := range touched {
		if err := a.products.SaveStock(ctx, products[id]); err != nil {
			return result, mapRepositoryError(err, nil)
		}
	}
	result.Updated = touched
	return result, nil
}

type noopMetrics struct{}

func (noopMetrics) StatusTransition(context.Context, string, string, string) {}
func (noopMetrics) StatusRejected(context.Context, string)                   {}
func (noopMetrics) StockClamped(context.Context, string)                     {}
