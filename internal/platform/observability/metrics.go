package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/forever-store/api/internal/services"

// OrderMetrics records order lifecycle counters through the global OpenTelemetry meter
// provider. Without an installed provider the instruments are no-ops.
type OrderMetrics struct {
	transitions metric.Int64Counter
	rejections  metric.Int64Counter
	stockClamps metric.Int64Counter
}

// NewOrderMetrics registers the order counters on the provided meter provider; nil selects
// the global provider.
func NewOrderMetrics(provider metric.MeterProvider) (*OrderMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	transitions, err := meter.Int64Counter("orders.status.transitions",
		metric.WithDescription("Accepted order status transitions"))
	if err != nil {
		return nil, err
	}
	rejections, err := meter.Int64Counter("orders.status.rejections",
		metric.WithDescription("Rejected order status updates by reason"))
	if err != nil {
		return nil, err
	}
	clamps, err := meter.Int64Counter("orders.stock.clamped",
		metric.WithDescription("Stock decrements floored at zero"))
	if err != nil {
		return nil, err
	}
	return &OrderMetrics{transitions: transitions, rejections: rejections, stockClamps: clamps}, nil
}

// StatusTransition counts an accepted transition.
func (m *OrderMetrics) StatusTransition(ctx context.Context, from, to, actor string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("actor", actor),
	))
}

// StatusRejected counts a rejected update.
func (m *OrderMetrics) StatusRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// StockClamped counts a size whose stock would have gone negative.
func (m *OrderMetrics) StockClamped(ctx context.Context, productID string) {
	if m == nil {
		return
	}
	m.stockClamps.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", productID)))
}
