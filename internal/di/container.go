package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forever-store/api/internal/payments"
	"github.com/forever-store/api/internal/platform/config"
	"github.com/forever-store/api/internal/platform/observability"
	"github.com/forever-store/api/internal/repositories"
	"github.com/forever-store/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Timeline services.TimelineService
	Stock    services.StockAdjuster
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

type containerOptions struct {
	logger   *zap.Logger
	clock    func() time.Time
	events   services.OrderEventPublisher
	metrics  services.OrderMetrics
	gateways services.PaymentGateways
}

// Option customises the container.
type Option func(*containerOptions)

// WithLogger sets the base logger used by service event logs.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithClock injects the service clock.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// WithEventPublisher sets the order notification sink.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.events = publisher
	}
}

// WithMetrics sets the lifecycle metrics recorder.
func WithMetrics(metrics services.OrderMetrics) Option {
	return func(o *containerOptions) {
		o.metrics = metrics
	}
}

// WithPaymentGateways overrides the gateways built from configuration.
func WithPaymentGateways(gateways services.PaymentGateways) Option {
	return func(o *containerOptions) {
		o.gateways = gateways
	}
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.gateways == nil {
		manager, err := BuildPaymentGateways(cfg.PSP, options.logger)
		if err != nil {
			return nil, err
		}
		if manager != nil {
			options.gateways = manager
		}
	}

	svc, err := buildServices(ctx, reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// BuildPaymentGateways registers a gateway for each provider with credentials. It returns a
// nil manager when no provider is configured; only cash on delivery is accepted then.
func BuildPaymentGateways(cfg config.PSPConfig, logger *zap.Logger) (*payments.Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gateways := make(map[string]payments.Gateway)

	if cfg.StripeAPIKey != "" {
		stripeGateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey: cfg.StripeAPIKey,
			Logger: observability.EventLogger(logger.Named("stripe")),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe gateway: %w", err)
		}
		gateways[payments.ProviderStripe] = stripeGateway
	}

	if cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "" {
		razorpayGateway, err := payments.NewRazorpayGateway(payments.RazorpayGatewayConfig{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
			Logger:    observability.EventLogger(logger.Named("razorpay")),
		})
		if err != nil {
			return nil, fmt.Errorf("build razorpay gateway: %w", err)
		}
		gateways[payments.ProviderRazorpay] = razorpayGateway
	}

	if len(gateways) == 0 {
		return nil, nil
	}
	return payments.NewManager(gateways)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, opts containerOptions) (Services, error) {
	var svc Services

	ordersRepo := reg.Orders()
	if ordersRepo == nil {
		return Services{}, errors.New("order repository is required")
	}

	timelineSvc, err := services.NewTimelineService(services.TimelineServiceDeps{
		Orders:   ordersRepo,
		Timeline: reg.Timeline(),
		Clock:    opts.clock,
		Logger:   observability.EventLogger(opts.logger.Named("timeline")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build timeline service: %w", err)
	}
	svc.Timeline = timelineSvc

	stockSvc, err := services.NewStockAdjuster(services.StockAdjusterDeps{
		Products: reg.Products(),
		Metrics:  opts.metrics,
		Logger:   observability.EventLogger(opts.logger.Named("stock")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock adjuster: %w", err)
	}
	svc.Stock = stockSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     ordersRepo,
		Timeline:   timelineSvc,
		Stock:      stockSvc,
		Payments:   opts.gateways,
		UnitOfWork: reg,
		Checkout: services.CheckoutSettings{
			Currency:       cfg.Checkout.Currency,
			DeliveryCharge: cfg.Checkout.DeliveryCharge,
			FrontendURL:    cfg.Checkout.FrontendURL,
		},
		Clock:   opts.clock,
		Events:  opts.events,
		Metrics: opts.metrics,
		Logger:  observability.EventLogger(opts.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	return svc, nil
}
