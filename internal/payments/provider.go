// Package payments integrates the payment provider and verifies provider-issued payment evidence.
package payments

import (
	"context"
	"errors"
	"strings"
)

// Status enumerates the normalised payment states.
type Status string

const (
	// StatusPending indicates the payment awaits customer action or provider processing.
	StatusPending Status = "pending"
	// StatusAuthorized indicates funds are held and can be captured.
	StatusAuthorized Status = "authorized"
	// StatusSucceeded indicates the provider captured the payment.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the payment was cancelled or failed permanently.
	StatusFailed Status = "failed"
)

// ErrProviderUnavailable is returned when the provider cannot be reached, times out, or the
// circuit breaker is open.
var ErrProviderUnavailable = errors.New("payments: provider unavailable")

// CreateOrderRequest asks the provider to open a payment session for Amount minor units.
type CreateOrderRequest struct {
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// ProviderOrder is the payment session handed back to the client.
type ProviderOrder struct {
	ID           string
	Provider     string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       Status
}

// PaymentDetails is the provider's view of a payment session used for reconciliation.
type PaymentDetails struct {
	Provider   string
	OrderID    string
	PaymentRef string
	Status     Status
	Amount     int64
	Currency   string
	Metadata   map[string]string
}

// Settled reports whether the funds are captured or held for capture.
func (d PaymentDetails) Settled() bool {
	return d.Status == StatusSucceeded || d.Status == StatusAuthorized
}

// Provider is the contract implemented by the payment provider adapter.
type Provider interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error)
	LookupPayment(ctx context.Context, providerOrderID string) (PaymentDetails, error)
}

// zeroDecimal lists currencies providers charge in whole units. Amounts in this codebase always
// carry two implied decimals, so these are scaled on the way in and out.
var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// ChargeableAmount rounds minor (two implied decimals) to what the provider can actually charge
// in currency, expressed again in minor units. Reconciliation compares against this value.
func ChargeableAmount(minor int64, currency string) int64 {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	return fromProviderUnits(toProviderUnits(minor, currency), currency)
}

func toProviderUnits(minor int64, currency string) int64 {
	if _, ok := zeroDecimal[currency]; ok {
		return (minor + 50) / 100
	}
	return minor
}

func fromProviderUnits(amount int64, currency string) int64 {
	if _, ok := zeroDecimal[currency]; ok {
		return amount * 100
	}
	return amount
}

func cloneMetadata(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = v
		}
	}
	return out
}
