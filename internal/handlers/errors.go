package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

// errorMapping translates a service sentinel into the API error envelope. An empty message
// passes the wrapped error text through.
type errorMapping struct {
	target  error
	code    string
	message string
	status  int
}

// serviceErrorMappings is ordered: the first sentinel matched by errors.Is wins.
var serviceErrorMappings = []errorMapping{
	{services.ErrEmptyCart, "empty_cart", "cart is empty", http.StatusBadRequest},
	{services.ErrMissingShippingAddress, "missing_shipping_address", "select a shipping address", http.StatusBadRequest},
	{services.ErrMissingContactChannel, "missing_contact_channel", "add an email or phone number to your profile", http.StatusBadRequest},
	{services.ErrInvalidLineItem, "invalid_line_item", "", http.StatusBadRequest},
	{services.ErrOrderBelowMinimumAdvance, "order_below_minimum_advance", "order total is below the advance payment amount", http.StatusUnprocessableEntity},
	{services.ErrPaymentVerificationFailed, "payment_verification_failed", "invalid payment signature", http.StatusBadRequest},
	{services.ErrOrderInvalidInput, "invalid_request", "", http.StatusBadRequest},
	{services.ErrCheckoutInvalidInput, "invalid_request", "", http.StatusBadRequest},
	{services.ErrCartInvalidInput, "invalid_request", "", http.StatusBadRequest},
	{services.ErrInventoryInvalidInput, "invalid_request", "", http.StatusBadRequest},
	{pagination.ErrInvalidPageSize, "invalid_request", "", http.StatusBadRequest},
	{pagination.ErrInvalidPageToken, "invalid_request", "", http.StatusBadRequest},
	{services.ErrOrderNotFound, "order_not_found", "order not found", http.StatusNotFound},
	{services.ErrAddressNotFound, "address_not_found", "address not found", http.StatusNotFound},
	{services.ErrProductNotFound, "product_not_found", "product not found", http.StatusNotFound},
	{services.ErrCartNotFound, "cart_not_found", "cart not found", http.StatusNotFound},
	{services.ErrCartItemNotFound, "cart_item_not_found", "cart item not found", http.StatusNotFound},
	{services.ErrInvalidTransition, "invalid_transition", "", http.StatusConflict},
	{services.ErrCheckoutInProgress, "checkout_in_progress", "another checkout is in progress", http.StatusConflict},
	{services.ErrPaymentSessionUsed, "payment_session_used", "payment session was already used for an order", http.StatusConflict},
	{services.ErrOrderConflict, "order_conflict", "order was modified concurrently; retry", http.StatusConflict},
	{services.ErrCartConflict, "cart_conflict", "cart was modified concurrently; retry", http.StatusConflict},
	{services.ErrPaymentProviderUnavailable, "payment_provider_unavailable", "payment provider unavailable", http.StatusBadGateway},
	{services.ErrOrderNumbersExhausted, "order_numbers_exhausted", "orders cannot be numbered; contact support", http.StatusServiceUnavailable},
	{services.ErrCheckoutUnavailable, "checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable},
	{services.ErrCartUnavailable, "cart_unavailable", "cart service unavailable", http.StatusServiceUnavailable},
	{services.ErrInventoryUnavailable, "inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable},
}

// writeServiceError maps err onto the error envelope. Unmapped errors are logged and become a 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, m := range serviceErrorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = err.Error()
		}
		httpx.WriteError(ctx, w, httpx.NewError(m.code, message, m.status))
		return
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "a backing service is unavailable", http.StatusServiceUnavailable))
		return
	}
	requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}
