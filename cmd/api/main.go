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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hanko-field/storefront/internal/di"
	"github.com/hanko-field/storefront/internal/handlers"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/checkoutlock"
	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/platform/jobs"
	"github.com/hanko-field/storefront/internal/platform/metrics"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/platform/secrets"
	"github.com/hanko-field/storefront/internal/repositories"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, startedAt)
	recorder := metrics.NewRecorder()
	eventLogger := observability.NewEventLogger(logger.Named("services"))

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)

	var extraChecks []repositories.DependencyCheck
	var locker services.CheckoutLocker
	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		redisLocker, err := checkoutlock.NewRedisLocker(redisClient, checkoutlock.WithTTL(cfg.Checkout.LockTTL))
		if err != nil {
			logger.Fatal("failed to initialise checkout lock", zap.Error(err))
		}
		locker = redisLocker
		extraChecks = append(extraChecks, repositories.DependencyCheck{Name: "redis", Check: redisLocker.Ping})
	} else {
		logger.Warn("redis address not configured; checkout lock disabled")
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, extraChecks...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	infra := di.Infrastructure{
		Locker:  locker,
		Metrics: recorder,
		Build:   buildInfo,
		Clock:   time.Now,
		Logger:  eventLogger,
	}

	if key := strings.TrimSpace(cfg.Payments.StripeAPIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: payments.StripeLogger(eventLogger),
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		breaker, err := payments.NewBreakerProvider(stripeProvider, payments.BreakerConfig{
			Name:         "stripe",
			Timeout:      cfg.Payments.Timeout,
			MaxFailures:  cfg.Payments.BreakerMaxFailures,
			OpenInterval: cfg.Payments.BreakerOpenInterval,
			Logger:       payments.StripeLogger(eventLogger),
		})
		if err != nil {
			logger.Fatal("failed to initialise payment breaker", zap.Error(err))
		}
		infra.Provider = breaker
	} else {
		logger.Warn("stripe api key not configured; payment intents disabled")
	}

	verifier, err := newSignatureVerifier(cfg.Payments, fetcher)
	if err != nil {
		logger.Fatal("failed to initialise payment verifier", zap.Error(err))
	}
	if verifier != nil {
		infra.Verifier = verifier
	} else {
		logger.Warn("payment signing secret not configured; payment completion disabled")
	}

	var pubsubClient *pubsub.Client
	var notificationTopic *pubsub.Topic
	if topicID := strings.TrimSpace(cfg.Notifications.Topic); topicID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Firestore.ProjectID, clientOptions(envValues)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		notificationTopic = pubsubClient.Topic(topicID)
		notifier, err := jobs.NewPubSubNotifier(notificationTopic)
		if err != nil {
			logger.Fatal("failed to initialise notifier", zap.Error(err))
		}
		infra.Notifier = notifier
	} else {
		logger.Warn("notification topic not configured; notifications disabled")
	}

	var eventPublisher *jobs.KafkaOrderEventPublisher
	if len(cfg.Events.KafkaBrokers) > 0 {
		eventPublisher, err = jobs.NewKafkaOrderEventPublisher(cfg.Events.KafkaBrokers, cfg.Events.Topic,
			jobs.WithKafkaLogger(observability.NewPrintfAdapter(logger.Named("kafka"))))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		infra.Events = eventPublisher
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	var janitorWG sync.WaitGroup
	janitor := idempotency.NewJanitor(idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	janitorWG.Add(1)
	go func() {
		defer janitorWG.Done()
		janitor.Run(janitorCtx)
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	svc := container.Services
	checkoutRateLimit := handlers.RateLimitMiddleware(cfg.Checkout.RateLimit, cfg.Checkout.RateWindow, time.Now)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart, idempotencyMiddleware)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout, checkoutRateLimit, idempotencyMiddleware)
	adminHandlers := handlers.NewAdminHandlers(authenticator, svc.Orders, svc.Inventory, idempotencyMiddleware)

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}

	projectID := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(recorder),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithMetricsHandler(recorder.Handler()),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(handlers.CombineRegistrars(orderHandlers.Routes, checkoutHandlers.Routes)),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

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
		serverLogger.Info("storefront api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	janitorCancel()
	janitorWG.Wait()

	// notifications drain before the topic and the firestore client go away
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
	if notificationTopic != nil {
		notificationTopic.Stop()
	}
	if pubsubClient != nil {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	if eventPublisher != nil {
		if err := eventPublisher.Close(); err != nil {
			logger.Warn("kafka close error", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", zap.Error(err))
		}
	}
}

// newSignatureVerifier resolves the signing secret through the fetcher when configured as a
// secret:// reference so rotations are picked up; inline secrets are served as-is. It returns nil
// when no secret is configured.
func newSignatureVerifier(cfg config.PaymentsConfig, fetcher *secrets.Fetcher) (*payments.SignatureVerifier, error) {
	if ref := strings.TrimSpace(cfg.SigningSecretRef); ref != "" {
		return payments.NewSignatureVerifier(fetcher, ref)
	}
	secret := strings.TrimSpace(cfg.SigningSecret)
	if secret == "" {
		return nil, nil
	}
	return payments.NewSignatureVerifier(payments.StaticSecret(secret), "")
}

func buildInfoFromEnv(env map[string]string, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(env["API_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
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

func clientOptions(env map[string]string) []option.ClientOption {
	if path := strings.TrimSpace(env["API_FIREBASE_CREDENTIALS_FILE"]); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	project := strings.TrimSpace(env["API_SECRET_PROJECT_ID"])
	if project == "" {
		project = strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"])
	}
	fallbackPath := strings.TrimSpace(env["API_SECRET_FALLBACK_FILE"])
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if clientOpts := clientOptions(env); len(clientOpts) > 0 {
		opts = append(opts, secrets.WithClientOptions(clientOpts...))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets startup must resolve. The Stripe key is only required once
// it is configured, so local runs can exercise direct placement without a provider.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Payments.SigningSecret"}
	if strings.TrimSpace(env["API_PAYMENTS_STRIPE_API_KEY"]) != "" {
		required = append(required, "Payments.StripeAPIKey")
	}
	if strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	return required
}
