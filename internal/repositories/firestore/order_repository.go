package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	ordersCollection          = "orders"
	paymentSessionsCollection = "paymentSessions"
	maxOrderPageSize          = 100
)

// OrderRepository persists order aggregates. Reads expose the document update time as UpdatedAt so
// callers can pass it back as an optimistic concurrency precondition.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
	sessions *pfirestore.BaseRepository[paymentSessionDocument]
}

// paymentSessionDocument lives at paymentSessions/{providerOrderID}.
type paymentSessionDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		sessions: pfirestore.NewBaseRepository[paymentSessionDocument](provider, paymentSessionsCollection),
	}, nil
}

// Insert creates the order document, failing with a conflict when the id is taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.base.Create(ctx, order.ID, newOrderDocument(order))
}

// Update writes the mutable order fields. Immutable snapshots (items, address, contact, totals)
// are never rewritten.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedUpdate *time.Time) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc := newOrderDocument(order)
	updates := []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "paymentStatus", Value: doc.PaymentStatus},
		{Path: "paymentMethod", Value: doc.PaymentMethod},
		{Path: "paymentReference", Value: doc.PaymentReference},
		{Path: "notes", Value: doc.Notes},
		{Path: "inventoryDeducted", Value: doc.InventoryDeducted},
		{Path: "updatedAt", Value: doc.UpdatedAt},
		{Path: "confirmedAt", Value: doc.ConfirmedAt},
		{Path: "cancelledAt", Value: doc.CancelledAt},
	}
	var opts []firestore.Precondition
	if expectedUpdate != nil && !expectedUpdate.IsZero() {
		opts = append(opts, firestore.LastUpdateTime(expectedUpdate.UTC()))
	}
	result, err := r.base.Update(ctx, order.ID, updates, opts...)
	if err != nil {
		return domain.Order{}, err
	}
	if !result.UpdateTime.IsZero() {
		order.UpdatedAt = result.UpdateTime
	}
	return order, nil
}

// ClaimInventoryDeduction flips inventoryDeducted to true inside a transaction.
func (r *OrderRepository) ClaimInventoryDeduction(ctx context.Context, orderID string, now time.Time) (bool, error) {
	var claimed bool
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimed = false
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if doc.InventoryDeducted {
			return nil
		}
		claimed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "inventoryDeducted", Value: true},
			{Path: "updatedAt", Value: now.UTC()},
		})
	})
	if err != nil {
		return false, pfirestore.WrapError("orders.claim_inventory", err)
	}
	return claimed, nil
}

// FindByID loads an order by id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID, doc.UpdateTime), nil
}

// FindPaymentSession returns the order id recorded for providerOrderID.
func (r *OrderRepository) FindPaymentSession(ctx context.Context, providerOrderID string) (string, error) {
	id := strings.TrimSpace(providerOrderID)
	if id == "" {
		return "", repositories.NewCodedError(repositories.OrderErrorInvalidInput, "provider order id is required", nil)
	}
	doc, err := r.sessions.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Data.OrderID, nil
}

// ReservePaymentSession creates the session document. Inside a transaction an existing document
// aborts the commit with AlreadyExists.
func (r *OrderRepository) ReservePaymentSession(ctx context.Context, providerOrderID, orderID string, at time.Time) error {
	id := strings.TrimSpace(providerOrderID)
	if id == "" {
		return repositories.NewCodedError(repositories.OrderErrorInvalidInput, "provider order id is required", nil)
	}
	return r.sessions.Create(ctx, id, paymentSessionDocument{OrderID: orderID, CreatedAt: at.UTC()})
}

// List returns orders newest first using keyset pagination on (createdAt, id).
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	size = min(size, maxOrderPageSize)

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, repositories.NewCodedError(repositories.OrderErrorInvalidInput, err.Error(), err)
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		switch len(filter.Status) {
		case 0:
		case 1:
			q = q.Where("status", "==", filter.Status[0])
		default:
			q = q.Where("status", "in", filter.Status)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, min(len(docs), size))}
	for i, doc := range docs {
		if i == size {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID, doc.UpdateTime))
	}
	return page, nil
}

type orderDocument struct {
	OrderNumber       string              `firestore:"orderNumber"`
	UserID            string              `firestore:"userId"`
	Status            string              `firestore:"status"`
	PaymentStatus     string              `firestore:"paymentStatus"`
	PaymentMethod     string              `firestore:"paymentMethod"`
	PaymentType       string              `firestore:"paymentType"`
	PaymentReference  string              `firestore:"paymentReference"`
	ProviderOrderID   string              `firestore:"providerOrderId,omitempty"`
	Currency          string              `firestore:"currency"`
	Items             []orderLineDocument `firestore:"items"`
	ShippingAddress   addressDocument     `firestore:"shippingAddress"`
	Contact           orderContactDoc     `firestore:"contact"`
	Totals            orderTotalsDocument `firestore:"totals"`
	Notes             string              `firestore:"notes"`
	InventoryDeducted bool                `firestore:"inventoryDeducted"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
	ConfirmedAt       *time.Time          `firestore:"confirmedAt"`
	CancelledAt       *time.Time          `firestore:"cancelledAt"`
}

type orderLineDocument struct {
	ProductID string  `firestore:"productId"`
	Name      string  `firestore:"name"`
	ImageURL  string  `firestore:"imageUrl,omitempty"`
	Size      *string `firestore:"size,omitempty"`
	Height    *string `firestore:"height,omitempty"`
	Quantity  int     `firestore:"quantity"`
	UnitPrice int64   `firestore:"unitPrice"`
	Total     int64   `firestore:"total"`
}

type orderContactDoc struct {
	Email string `firestore:"email,omitempty"`
	Phone string `firestore:"phone,omitempty"`
}

type orderTotalsDocument struct {
	Subtotal            int64 `firestore:"subtotal"`
	TaxAmount           int64 `firestore:"taxAmount"`
	GrandTotal          int64 `firestore:"grandTotal"`
	CODAdvancePayment   int64 `firestore:"codAdvancePayment"`
	CODRemainingPayment int64 `firestore:"codRemainingPayment"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderLineDocument, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderLineDocument{
			ProductID: it.ProductID,
			Name:      it.Name,
			ImageURL:  it.ImageURL,
			Size:      it.Size,
			Height:    it.Height,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Total:     it.Total,
		})
	}
	return orderDocument{
		OrderNumber:      o.OrderNumber,
		UserID:           o.UserID,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentMethod:    string(o.PaymentMethod),
		PaymentType:      string(o.PaymentType),
		PaymentReference: o.PaymentReference,
		ProviderOrderID:  o.ProviderOrderID,
		Currency:         o.Currency,
		Items:            items,
		ShippingAddress:  newAddressDocument(o.ShippingAddress),
		Contact:          orderContactDoc{Email: o.Contact.Email, Phone: o.Contact.Phone},
		Totals: orderTotalsDocument{
			Subtotal:            o.Totals.Subtotal,
			TaxAmount:           o.Totals.TaxAmount,
			GrandTotal:          o.Totals.GrandTotal,
			CODAdvancePayment:   o.Totals.CODAdvancePayment,
			CODRemainingPayment: o.Totals.CODRemainingPayment,
		},
		Notes:             o.Notes,
		InventoryDeducted: o.InventoryDeducted,
		CreatedAt:         o.CreatedAt.UTC(),
		UpdatedAt:         o.UpdatedAt.UTC(),
		ConfirmedAt:       utcPtr(o.ConfirmedAt),
		CancelledAt:       utcPtr(o.CancelledAt),
	}
}

func (d orderDocument) toDomain(id string, updateTime time.Time) domain.Order {
	items := make([]domain.OrderLineItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.OrderLineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			ImageURL:  it.ImageURL,
			Size:      it.Size,
			Height:    it.Height,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Total:     it.Total,
		})
	}
	order := domain.Order{
		ID:                id,
		OrderNumber:       d.OrderNumber,
		UserID:            d.UserID,
		Status:            domain.OrderStatus(d.Status),
		PaymentStatus:     domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:     domain.PaymentMethod(d.PaymentMethod),
		PaymentType:       domain.PaymentType(d.PaymentType),
		PaymentReference:  d.PaymentReference,
		ProviderOrderID:   d.ProviderOrderID,
		Currency:          d.Currency,
		Items:             items,
		ShippingAddress:   d.ShippingAddress.toDomain(""),
		Contact:           domain.OrderContact{Email: d.Contact.Email, Phone: d.Contact.Phone},
		Totals: domain.OrderTotals{
			Subtotal:            d.Totals.Subtotal,
			TaxAmount:           d.Totals.TaxAmount,
			GrandTotal:          d.Totals.GrandTotal,
			CODAdvancePayment:   d.Totals.CODAdvancePayment,
			CODRemainingPayment: d.Totals.CODRemainingPayment,
		},
		Notes:             d.Notes,
		InventoryDeducted: d.InventoryDeducted,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         updateTime,
		ConfirmedAt:       d.ConfirmedAt,
		CancelledAt:       d.CancelledAt,
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = d.UpdatedAt
	}
	return order
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
