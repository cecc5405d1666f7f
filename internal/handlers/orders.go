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

// OrderHandlers exposes order read endpoints for authenticated users.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes registers the /orders read endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := guardedRoutes(r, h.authn, nil, nil)
	group.Get("/", h.listOrders)
	group.Get("/{orderID}", h.getOrder)
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	OrderNumber       string             `json:"orderNumber"`
	UserID            string             `json:"userId"`
	Status            string             `json:"status"`
	PaymentStatus     string             `json:"paymentStatus"`
	PaymentMethod     string             `json:"paymentMethod,omitempty"`
	PaymentType       string             `json:"paymentType,omitempty"`
	PaymentReference  string             `json:"paymentReference,omitempty"`
	ProviderOrderID   string             `json:"providerOrderId,omitempty"`
	Currency          string             `json:"currency"`
	Items             []orderItemPayload `json:"items"`
	ShippingAddress   addressPayload     `json:"shippingAddress"`
	Contact           contactPayload     `json:"contact"`
	Totals            totalsPayload      `json:"totals"`
	Notes             string             `json:"notes,omitempty"`
	InventoryDeducted bool               `json:"inventoryDeducted"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt"`
	ConfirmedAt       string             `json:"confirmedAt,omitempty"`
	CancelledAt       string             `json:"cancelledAt,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Size      string `json:"size,omitempty"`
	Height    string `json:"height,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Total     int64  `json:"total"`
}

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type contactPayload struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type totalsPayload struct {
	Subtotal            int64 `json:"subtotal"`
	TaxAmount           int64 `json:"taxAmount"`
	GrandTotal          int64 `json:"grandTotal"`
	CODAdvancePayment   int64 `json:"codAdvancePayment,omitempty"`
	CODRemainingPayment int64 `json:"codRemainingPayment,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	params, err := pagination.Parse(query, pagination.Options{})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		UserID: identity.UID,
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	// foreign orders are reported as missing
	if order.UserID != identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func buildOrderList(orders []services.Order, next string) orderListResponse {
	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	return orderListResponse{Items: items, NextPageToken: strings.TrimSpace(next)}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			Size:      derefString(item.Size),
			Height:    derefString(item.Height),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	addr := order.ShippingAddress
	return orderPayload{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentMethod:    string(order.PaymentMethod),
		PaymentType:      string(order.PaymentType),
		PaymentReference: order.PaymentReference,
		ProviderOrderID:  order.ProviderOrderID,
		Currency:         strings.ToUpper(order.Currency),
		Items:            items,
		ShippingAddress: addressPayload{
			Recipient:  addr.Recipient,
			Line1:      addr.Line1,
			Line2:      derefString(addr.Line2),
			City:       addr.City,
			State:      derefString(addr.State),
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Phone:      derefString(addr.Phone),
		},
		Contact: contactPayload{Email: order.Contact.Email, Phone: order.Contact.Phone},
		Totals: totalsPayload{
			Subtotal:            order.Totals.Subtotal,
			TaxAmount:           order.Totals.TaxAmount,
			GrandTotal:          order.Totals.GrandTotal,
			CODAdvancePayment:   order.Totals.CODAdvancePayment,
			CODRemainingPayment: order.Totals.CODRemainingPayment,
		},
		Notes:             order.Notes,
		InventoryDeducted: order.InventoryDeducted,
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
		ConfirmedAt:       formatTimePtr(order.ConfirmedAt),
		CancelledAt:       formatTimePtr(order.CancelledAt),
	}
}
