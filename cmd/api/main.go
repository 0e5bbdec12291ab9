package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/option"

	"github.com/forever-store/api/internal/di"
	"github.com/forever-store/api/internal/handlers"
	"github.com/forever-store/api/internal/platform/auth"
	"github.com/forever-store/api/internal/platform/config"
	"github.com/forever-store/api/internal/platform/events"
	pfirestore "github.com/forever-store/api/internal/platform/firestore"
	"github.com/forever-store/api/internal/platform/idempotency"
	"github.com/forever-store/api/internal/platform/observability"
	"github.com/forever-store/api/internal/platform/secrets"
	"github.com/forever-store/api/internal/repositories"
	firestoreRepo "github.com/forever-store/api/internal/repositories/firestore"
	"github.com/forever-store/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	var resolver config.SecretResolver
	if projectID := secretProjectID(); projectID != "" {
		secretResolver, err := secrets.NewResolver(ctx, projectID, logger.Named("secrets"), credentialOptions()...)
		if err != nil {
			logger.Fatal("failed to initialise secret resolver", zap.Error(err))
		}
		defer func() {
			if err := secretResolver.Close(); err != nil {
				logger.Warn("secret resolver close error", zap.Error(err))
			}
		}()
		resolver = secretResolver
	}

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	unitOfWork := pfirestore.NewUnitOfWork(firestoreProvider,
		pfirestore.WithTxTimeout(cfg.Firestore.TxTimeout),
		pfirestore.WithTxAttempts(cfg.Firestore.TxMaxAttempts),
	)

	publisher, probes, closePublisher, err := newEventPublisher(ctx, cfg, logger.Named("events"))
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer closePublisher()

	healthRepo, err := repositories.NewDependencyHealthRepository(append([]repositories.DependencyCheck{
		{Name: "firestore", Check: firestoreProvider.Ping},
	}, probes...))
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, unitOfWork, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	metrics, err := observability.NewOrderMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Fatal("failed to initialise metrics", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry,
		di.WithLogger(logger),
		di.WithEventPublisher(publisher),
		di.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	firebaseClient, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase auth", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseClient)

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider, unitOfWork)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		idempotency.RunCleanup(cleanupCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders,
		handlers.WithCheckoutIdempotency(idempotencyMiddleware),
	)
	timelineHandlers := handlers.NewTimelineHandlers(authenticator, container.Services.Orders, container.Services.Timeline)
	adminHandlers := handlers.NewAdminOrderHandlers(authenticator, container.Services.Orders)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithHealthRepository(registry.Health()),
	)

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	opts = append(opts, handlers.WithOrderRoutes(timelineHandlers.Routes))
	opts = append(opts, handlers.WithAdminRoutes(adminHandlers.Routes))

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("forever api listening", zap.String("eventsSink", cfg.Events.Sink))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newEventPublisher builds the configured notification sink together with its readiness
// probes and a close hook.
func newEventPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.OrderEventPublisher, []repositories.DependencyCheck, func(), error) {
	switch cfg.Events.Sink {
	case config.EventsSinkPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID, credentialOptions()...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Events.Topic)
		publisher, err := events.NewPubSubPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		probe := repositories.DependencyCheck{
			Name: "pubsub",
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", cfg.Events.Topic)
				}
				return nil
			},
		}
		closer := func() {
			topic.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
		return publisher, []repositories.DependencyCheck{probe}, closer, nil
	case config.EventsSinkKafka:
		publisher, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.Topic, observability.NewPrintfAdapter(logger.Named("kafka"), zapcore.WarnLevel))
		if err != nil {
			return nil, nil, nil, err
		}
		closer := func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("kafka close error", zap.Error(err))
			}
		}
		return publisher, nil, closer, nil
	default:
		return events.NewLogPublisher(logger), nil, func() {}, nil
	}
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func secretProjectID() string {
	if id := strings.TrimSpace(os.Getenv("API_SECRET_PROJECT_ID")); id != "" {
		return id
	}
	return strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID"))
}

func credentialOptions() []option.ClientOption {
	if path := strings.TrimSpace(os.Getenv("API_FIREBASE_CREDENTIALS_FILE")); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// requiredSecretNames lists config secrets that must resolve to a value, from the comma
// separated API_REQUIRED_SECRETS (for example "PSP.StripeAPIKey").
func requiredSecretNames() []string {
	var names []string
	for _, name := range strings.Split(os.Getenv("API_REQUIRED_SECRETS"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
