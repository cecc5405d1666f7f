package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxCartBodySize = 4 * 1024

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn       *auth.Authenticator
	carts       services.CartService
	middlewares []func(http.Handler) http.Handler
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
// Middlewares run after authentication.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, middlewares ...func(http.Handler) http.Handler) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts, middlewares: middlewares}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := guardedRoutes(r, h.authn, nil, h.middlewares)
	group.Get("/", h.getCart)
	group.Post("/items", h.addItem)
	group.Put("/items/{itemID}", h.updateItem)
	group.Delete("/items/{itemID}", h.removeItem)
}

type addCartItemRequest struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Size      *string `json:"size"`
	Height    *string `json:"height"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID         string            `json:"id"`
	Currency   string            `json:"currency"`
	Items      []cartItemPayload `json:"items"`
	ItemsCount int               `json:"itemsCount"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Height    string `json:"height,omitempty"`
	AddedAt   string `json:"addedAt,omitempty"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, false, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    identity.UID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Size:      req.Size,
		Height:    req.Height,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusCreated, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, false, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateItemQuantity(ctx, services.UpdateCartItemCommand{
		UserID:   identity.UID,
		ItemID:   strings.TrimSpace(chi.URLParam(r, "itemID")),
		Quantity: *req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID: identity.UID,
		ItemID: strings.TrimSpace(chi.URLParam(r, "itemID")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func writeCart(w http.ResponseWriter, status int, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(cart.UpdatedAt.UnixNano(), 36)))
	}
	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

func buildCartPayload(cart services.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	count := 0
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      derefString(item.Size),
			Height:    derefString(item.Height),
			AddedAt:   formatTime(item.AddedAt),
		})
		count += item.Quantity
	}
	return cartPayload{
		ID:         cart.ID,
		Currency:   strings.ToUpper(cart.Currency),
		Items:      items,
		ItemsCount: count,
		UpdatedAt:  formatTime(cart.UpdatedAt),
	}
}
