package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes order placement endpoints for authenticated users.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	middlewares []func(http.Handler) http.Handler
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
// Middlewares run after authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, middlewares ...func(http.Handler) http.Handler) *CheckoutHandlers {
	return &CheckoutHandlers{authn: authn, checkout: checkout, middlewares: middlewares}
}

// Routes registers placement endpoints under the /orders router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := guardedRoutes(r, h.authn, nil, h.middlewares)
	group.Post("/", h.placeDirect)
	group.Post("/payment-intent", h.createPaymentIntent)
	group.Post("/payment-intent/complete", h.completePayment)
}

type placeDirectRequest struct {
	AddressID        string `json:"addressId"`
	PaymentReference string `json:"paymentReference"`
	PaymentMethod    string `json:"paymentMethod"`
}

type paymentIntentRequest struct {
	PaymentType string `json:"paymentType"`
}

type completePaymentRequest struct {
	OrderRef    string `json:"orderRef"`
	PaymentRef  string `json:"paymentRef"`
	Signature   string `json:"signature"`
	AddressID   string `json:"addressId"`
	PaymentType string `json:"paymentType"`
}

type paymentIntentResponse struct {
	ProviderOrderID string        `json:"providerOrderId"`
	Provider        string        `json:"provider"`
	ClientSecret    string        `json:"clientSecret,omitempty"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	PaymentType     string        `json:"paymentType"`
	Totals          totalsPayload `json:"totals"`
}

func (h *CheckoutHandlers) placeDirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req placeDirectRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, false, &req) {
		return
	}
	if strings.TrimSpace(req.PaymentReference) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentReference is required", http.StatusBadRequest))
		return
	}

	order, err := h.checkout.PlaceDirect(ctx, services.PlaceDirectCommand{
		UserID:           identity.UID,
		AddressID:        strings.TrimSpace(req.AddressID),
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req paymentIntentRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, true, &req) {
		return
	}

	intent, err := h.checkout.CreatePaymentIntent(ctx, services.CreatePaymentIntentCommand{
		UserID:      identity.UID,
		PaymentType: services.PaymentType(strings.TrimSpace(req.PaymentType)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentIntentResponse{
		ProviderOrderID: intent.ProviderOrderID,
		Provider:        intent.Provider,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        strings.ToUpper(intent.Currency),
		PaymentType:     string(intent.PaymentType),
		Totals: totalsPayload{
			Subtotal:            intent.Totals.Subtotal,
			TaxAmount:           intent.Totals.TaxAmount,
			GrandTotal:          intent.Totals.GrandTotal,
			CODAdvancePayment:   intent.Totals.CODAdvancePayment,
			CODRemainingPayment: intent.Totals.CODRemainingPayment,
		},
	})
}

func (h *CheckoutHandlers) completePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req completePaymentRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, false, &req) {
		return
	}
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"orderRef", req.OrderRef},
		{"paymentRef", req.PaymentRef},
		{"signature", req.Signature},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", strings.Join(missing, ", ")+" required", http.StatusBadRequest).
			WithDetails(map[string]any{"missing": missing}))
		return
	}

	order, err := h.checkout.CompletePayment(ctx, services.CompletePaymentCommand{
		UserID:      identity.UID,
		SessionRef:  strings.TrimSpace(req.OrderRef),
		PaymentRef:  strings.TrimSpace(req.PaymentRef),
		Signature:   strings.TrimSpace(req.Signature),
		AddressID:   strings.TrimSpace(req.AddressID),
		PaymentType: services.PaymentType(strings.TrimSpace(req.PaymentType)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}
