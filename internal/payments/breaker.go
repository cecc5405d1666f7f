package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultCallTimeout     = 10 * time.Second
	defaultMaxFailures     = 5
	defaultBreakerInterval = 30 * time.Second
)

// BreakerConfig tunes the circuit breaker wrapped around a Provider.
type BreakerConfig struct {
	Name         string
	Timeout      time.Duration
	MaxFailures  int
	OpenInterval time.Duration
	Logger       StripeLogger
}

// BreakerProvider guards a Provider with a per-call timeout and a circuit breaker. Timeouts,
// transport failures and an open breaker surface as ErrProviderUnavailable; provider rejections
// of the request itself pass through unchanged and do not trip the breaker.
type BreakerProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker[any]
	timeout time.Duration
}

// NewBreakerProvider wraps next.
func NewBreakerProvider(next Provider, cfg BreakerConfig) (*BreakerProvider, error) {
	if next == nil {
		return nil, errors.New("payments breaker: provider is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.OpenInterval <= 0 {
		cfg.OpenInterval = defaultBreakerInterval
	}
	if cfg.Name == "" {
		cfg.Name = "payments"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	threshold := uint32(cfg.MaxFailures)
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger(context.Background(), "payments.breaker.state_changed", map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	}
	return &BreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		timeout: cfg.Timeout,
	}, nil
}

// CreateOrder implements Provider.
func (b *BreakerProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error) {
	result, err := b.call(ctx, func(ctx context.Context) (any, error) {
		return b.next.CreateOrder(ctx, req)
	})
	if err != nil {
		return ProviderOrder{}, err
	}
	return result.(ProviderOrder), nil
}

// LookupPayment implements Provider.
func (b *BreakerProvider) LookupPayment(ctx context.Context, providerOrderID string) (PaymentDetails, error) {
	result, err := b.call(ctx, func(ctx context.Context) (any, error) {
		return b.next.LookupPayment(ctx, providerOrderID)
	})
	if err != nil {
		return PaymentDetails{}, err
	}
	return result.(PaymentDetails), nil
}

// State exposes the breaker state for readiness reporting.
func (b *BreakerProvider) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerProvider) call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return fn(callCtx)
	})
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	case isClientError(err):
		return nil, err
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}
