package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger

	intents stripePaymentIntentAPI
}

// StripeProvider implements Provider with Stripe PaymentIntents.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	account string
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	intents := cfg.intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// CreateOrder creates a PaymentIntent for the requested amount.
func (p *StripeProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error) {
	if req.Amount <= 0 {
		return ProviderOrder{}, fmt.Errorf("stripe: amount must be positive, got %d", req.Amount)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return ProviderOrder{}, errors.New("stripe: currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toProviderUnits(req.Amount, currency)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if desc := strings.TrimSpace(req.Description); desc != "" {
		params.Description = stripe.String(desc)
	}
	if md := cloneMetadata(req.Metadata); md != nil {
		params.Metadata = md
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return ProviderOrder{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})
	return ProviderOrder{
		ID:           intent.ID,
		Provider:     "stripe",
		ClientSecret: intent.ClientSecret,
		Amount:       fromProviderUnits(intent.Amount, currency),
		Currency:     currency,
		Status:       stripeStatus(intent.Status),
	}, nil
}

// LookupPayment retrieves a PaymentIntent with its latest charge.
func (p *StripeProvider) LookupPayment(ctx context.Context, providerOrderID string) (PaymentDetails, error) {
	id := strings.TrimSpace(providerOrderID)
	if id == "" {
		return PaymentDetails{}, errors.New("stripe: payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.intents.Get(id, params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return stripePaymentDetails(intent), nil
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}
	currency := strings.ToUpper(string(intent.Currency))
	amount := intent.Amount
	if intent.Status == stripe.PaymentIntentStatusSucceeded && intent.AmountReceived > 0 {
		amount = intent.AmountReceived
	}
	details := PaymentDetails{
		Provider: "stripe",
		OrderID:  intent.ID,
		Status:   stripeStatus(intent.Status),
		Amount:   fromProviderUnits(amount, currency),
		Currency: currency,
		Metadata: cloneMetadata(intent.Metadata),
	}
	if intent.LatestCharge != nil {
		details.PaymentRef = intent.LatestCharge.ID
	}
	return details
}

func stripeStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusRequiresCapture:
		return StatusAuthorized
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

// isClientError reports Stripe 4xx responses (other than rate limiting), which say nothing about
// provider health.
func isClientError(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != 429
}
