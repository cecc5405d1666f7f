package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/services"
)

const maxAdminBodySize = 16 * 1024

// AdminHandlers exposes the operator surface: order transitions, corrections and variant stock.
type AdminHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	inventory   services.InventoryLedger
	middlewares []func(http.Handler) http.Handler
}

// NewAdminHandlers constructs admin handlers gated to admin and staff roles.
// Middlewares run after authentication.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, inventory services.InventoryLedger, middlewares ...func(http.Handler) http.Handler) *AdminHandlers {
	return &AdminHandlers{authn: authn, orders: orders, inventory: inventory, middlewares: middlewares}
}

// Routes registers admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := guardedRoutes(r, h.authn, []string{auth.RoleAdmin, auth.RoleStaff}, h.middlewares)
	group.Get("/orders", h.listOrders)
	group.Put("/orders/{orderID}", h.updateOrder)
	group.Post("/orders/{orderID}/confirm", h.confirmOrder)
	group.Post("/orders/{orderID}/cancel", h.cancelOrder)
	group.Put("/products/{productID}/variants", h.setVariants)
}

type adminCancelRequest struct {
	Reason string `json:"reason"`
}

type adminUpdateOrderRequest struct {
	Status           *string `json:"status"`
	PaymentStatus    *string `json:"paymentStatus"`
	PaymentMethod    *string `json:"paymentMethod"`
	PaymentReference *string `json:"paymentReference"`
	Notes            *string `json:"notes"`
}

type variantPayload struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

type setVariantsRequest struct {
	Variants []variantPayload `json:"variants"`
}

type adjustmentPayload struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Deducted  int    `json:"deducted"`
	Remaining int    `json:"remaining"`
	Shortfall int    `json:"shortfall,omitempty"`
	Error     string `json:"error,omitempty"`
}

type inventoryPayload struct {
	Adjustments []adjustmentPayload `json:"adjustments"`
	Failed      bool                `json:"failed"`
}

type confirmOrderResponse struct {
	Order     orderPayload      `json:"order"`
	Inventory *inventoryPayload `json:"inventory,omitempty"`
}

type productResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Variants  []variantPayload `json:"variants"`
	InStock   bool             `json:"inStock"`
	UpdatedAt string           `json:"updatedAt,omitempty"`
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	params, err := pagination.Parse(query, pagination.Options{})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		UserID: strings.TrimSpace(query.Get("userId")),
		Status: parseFilterValues(query["status"]),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page.Items, page.NextPageToken))
}

func (h *AdminHandlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	result, err := h.orders.Confirm(ctx, services.ConfirmOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		ActorID: identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := confirmOrderResponse{Order: buildOrderPayload(result.Order)}
	if result.Inventory != nil {
		resp.Inventory = buildInventoryPayload(*result.Inventory)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req adminCancelRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, true, &req) {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Reason:  req.Reason,
		ActorID: identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req adminUpdateOrderRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, false, &req) {
		return
	}
	if req.Status == nil && req.PaymentStatus == nil && req.PaymentMethod == nil && req.PaymentReference == nil && req.Notes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "no editable fields supplied", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateFields(ctx, services.UpdateOrderFieldsCommand{
		OrderID:          strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:           req.Status,
		PaymentStatus:    req.PaymentStatus,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
		ActorID:          identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) setVariants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req setVariantsRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, false, &req) {
		return
	}
	if req.Variants == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "variants is required", http.StatusBadRequest))
		return
	}

	variants := make([]services.VariantStock, 0, len(req.Variants))
	for _, v := range req.Variants {
		variants = append(variants, services.VariantStock{Size: v.Size, Quantity: v.Quantity})
	}
	product, err := h.inventory.SetVariants(ctx, services.SetVariantsCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		Variants:  variants,
		ActorID:   identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	out := make([]variantPayload, 0, len(product.Variants))
	for _, v := range product.Variants {
		out = append(out, variantPayload{Size: v.Size, Quantity: v.Quantity})
	}
	writeJSONResponse(w, http.StatusOK, productResponse{
		ID:        product.ID,
		Name:      product.Name,
		Variants:  out,
		InStock:   product.InStock,
		UpdatedAt: formatTime(product.UpdatedAt),
	})
}

func buildInventoryPayload(report services.InventoryReport) *inventoryPayload {
	adjustments := make([]adjustmentPayload, 0, len(report.Adjustments))
	for _, adj := range report.Adjustments {
		adjustments = append(adjustments, adjustmentPayload{
			ProductID: adj.ProductID,
			Size:      adj.Size,
			Requested: adj.Requested,
			Deducted:  adj.Deducted,
			Remaining: adj.Remaining,
			Shortfall: adj.Shortfall,
			Error:     adj.Error,
		})
	}
	return &inventoryPayload{Adjustments: adjustments, Failed: report.Failed()}
}
