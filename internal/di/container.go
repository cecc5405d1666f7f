package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"

	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing       services.PricingCalculator
	Inventory     services.InventoryLedger
	Notifications services.NotificationDispatcher
	Orders        services.OrderService
	Checkout      services.CheckoutService
	Cart          services.CartService
	System        services.SystemService
}

// Infrastructure carries the external collaborators built by the composition root. Nil members
// disable the feature that depends on them.
type Infrastructure struct {
	Provider payments.Provider
	Verifier services.PaymentVerifier
	Locker   services.CheckoutLocker
	Notifier services.Notifier
	Events   services.OrderEventPublisher
	Metrics  services.Metrics
	Build    services.BuildInfo
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close drains queued notifications, then releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Services.Notifications != nil {
		if err := c.Services.Notifications.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close notifications: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildServices(ctx context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	if err := services.ConfigureOrderCounter(ctx, reg.Counters()); err != nil {
		return Services{}, err
	}

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := func() string { return ulid.Make().String() }

	pricing, err := services.NewPricingCalculator(cfg.Pricing.TaxRate)
	if err != nil {
		return Services{}, fmt.Errorf("build pricing calculator: %w", err)
	}
	svc.Pricing = pricing

	inventory, err := services.NewInventoryLedger(services.InventoryLedgerDeps{
		Products: reg.Products(),
		Metrics:  infra.Metrics,
		Logger:   infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory ledger: %w", err)
	}
	svc.Inventory = inventory

	if infra.Notifier != nil {
		dispatcher, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Notifier:    infra.Notifier,
			AdminEmail:  cfg.Notifications.AdminEmail,
			Workers:     cfg.Notifications.Workers,
			QueueSize:   cfg.Notifications.QueueSize,
			Timeout:     cfg.Notifications.Timeout,
			Language:    language.English,
			Metrics:     infra.Metrics,
			Clock:       clock,
			IDGenerator: newID,
			Logger:      infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
		}
		svc.Notifications = dispatcher
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:             reg.Orders(),
		Counters:           reg.Counters(),
		Carts:              reg.Carts(),
		Users:              reg.Users(),
		Inventory:          svc.Inventory,
		Notifications:      svc.Notifications,
		UnitOfWork:         reg,
		Events:             infra.Events,
		Metrics:            infra.Metrics,
		Clock:              clock,
		IDGenerator:        newID,
		Logger:             infra.Logger,
		DefaultEntryStatus: cfg.Orders.DefaultEntryStatus,
		AdvanceAmount:      cfg.Checkout.AdvanceAmount,
		Currency:           cfg.Payments.Currency,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:           reg.Carts(),
		Products:        reg.Products(),
		Addresses:       reg.Addresses(),
		Orders:          svc.Orders,
		Pricing:         svc.Pricing,
		Provider:        infra.Provider,
		Verifier:        infra.Verifier,
		Locker:          infra.Locker,
		Notifications:   svc.Notifications,
		Metrics:         infra.Metrics,
		Clock:           clock,
		Logger:          infra.Logger,
		Currency:        cfg.Payments.Currency,
		AdvanceAmount:   cfg.Checkout.AdvanceAmount,
		ReconcileAmount: cfg.Payments.ReconcileAmount,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	cart, err := services.NewCartService(services.CartServiceDeps{
		Repository:  reg.Carts(),
		Products:    reg.Products(),
		Clock:       clock,
		Currency:    cfg.Payments.Currency,
		Logger:      infra.Logger,
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	if healthRepo := reg.Health(); healthRepo != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            infra.Build,
			Features: map[string]bool{
				"payments.provider": infra.Provider != nil,
				"payments.verifier": infra.Verifier != nil,
				"checkout.lock":     infra.Locker != nil,
				"notifications":     infra.Notifier != nil,
				"order.events":      infra.Events != nil,
			},
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}
