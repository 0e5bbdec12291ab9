package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/forever-store/api/internal/platform/requestctx"
	"github.com/forever-store/api/internal/services"
)

// LogPublisher writes order events to the structured log. Used for local development when
// no broker is configured.
type LogPublisher struct {
	fallback *zap.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(fallback *zap.Logger) *LogPublisher {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return &LogPublisher{fallback: fallback}
}

// PublishOrderEvent logs the event at info level.
func (p *LogPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	logger, ok := requestctx.LoggerFromContext(ctx)
	if !ok {
		logger = p.fallback
	}
	logger.Info("order event",
		zap.String("eventType", event.Type),
		zap.String("orderId", event.OrderID),
		zap.String("userId", event.UserID),
		zap.String("status", event.Status),
		zap.String("subject", event.Subject),
	)
	return nil
}
