package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	Cart                = domain.Cart
	CartItem            = domain.CartItem
	Order               = domain.Order
	OrderTotals         = domain.OrderTotals
	OrderLineItem       = domain.OrderLineItem
	OrderContact        = domain.OrderContact
	OrderStatus         = domain.OrderStatus
	PaymentStatus       = domain.PaymentStatus
	PaymentType         = domain.PaymentType
	PaymentMethod       = domain.PaymentMethod
	PaymentIntent       = domain.PaymentIntent
	Address             = domain.Address
	UserProfile         = domain.UserProfile
	Product             = domain.Product
	VariantStock        = domain.VariantStock
	InventoryAdjustment = domain.InventoryAdjustment
	PricingLine         = domain.PricingLine
	PricingResult       = domain.PricingResult
	SystemHealthReport  = domain.SystemHealthReport
	OrderListFilter     = repositories.OrderListFilter
)

// PricingCalculator derives order totals from priced line items.
type PricingCalculator interface {
	Calculate(lines []PricingLine) (PricingResult, error)
}

// InventoryLedger deducts variant stock for placed orders and applies catalog stock edits.
type InventoryLedger interface {
	ReserveAndDeduct(ctx context.Context, orderID string, lines []OrderLineItem) (InventoryReport, error)
	SetVariants(ctx context.Context, cmd SetVariantsCommand) (Product, error)
}

// InventoryReport lists the per-line outcome of a deduction run. Lines without tracked stock have
// no entry.
type InventoryReport struct {
	OrderID     string
	Adjustments []InventoryAdjustment
}

// Failed reports whether any product could not be persisted.
func (r InventoryReport) Failed() bool {
	for _, adj := range r.Adjustments {
		if adj.Error != "" {
			return true
		}
	}
	return false
}

// SetVariantsCommand replaces the variant stock of a product.
type SetVariantsCommand struct {
	ProductID string
	Variants  []VariantStock
	ActorID   string
}

// OrderService owns the order lifecycle and its guarded transitions.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Confirm(ctx context.Context, cmd ConfirmOrderCommand) (ConfirmOrderResult, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdateFields(ctx context.Context, cmd UpdateOrderFieldsCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
}

// CreateOrderCommand carries the snapshots a new order is built from. When Cart is set the cart
// document is deleted in the same transaction as the order insert, guarded by Cart.UpdatedAt.
type CreateOrderCommand struct {
	UserID           string
	Currency         string
	Items            []OrderLineItem
	Pricing          PricingResult
	ShippingAddress  *Address
	Contact          OrderContact
	ProviderPaid     bool
	PaymentType      PaymentType
	PaymentMethod    PaymentMethod
	PaymentReference string
	ProviderOrderID  string
	Cart             *Cart
}

// ConfirmOrderCommand requests the administrative confirm transition.
type ConfirmOrderCommand struct {
	OrderID string
	ActorID string
}

// ConfirmOrderResult returns the confirmed order and the inventory deduction outcome. Inventory is
// nil when no deduction ran.
type ConfirmOrderResult struct {
	Order     Order
	Inventory *InventoryReport
}

// CancelOrderCommand requests the administrative cancel transition.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// UpdateOrderFieldsCommand applies operator corrections. Nil fields are left untouched.
type UpdateOrderFieldsCommand struct {
	OrderID          string
	Status           *string
	PaymentStatus    *string
	PaymentMethod    *string
	PaymentReference *string
	Notes            *string
	ActorID          string
}

// CheckoutService composes pricing, payment verification and order creation.
type CheckoutService interface {
	PlaceDirect(ctx context.Context, cmd PlaceDirectCommand) (Order, error)
	CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
	CompletePayment(ctx context.Context, cmd CompletePaymentCommand) (Order, error)
}

// PlaceDirectCommand places an order that was paid out of band. PaymentMethod defaults to direct.
type PlaceDirectCommand struct {
	UserID           string
	AddressID        string
	PaymentReference string
	PaymentMethod    string
}

// CreatePaymentIntentCommand opens a provider payment session for the current cart.
type CreatePaymentIntentCommand struct {
	UserID      string
	PaymentType PaymentType
}

// CompletePaymentCommand carries the provider evidence for a finished payment session.
type CompletePaymentCommand struct {
	UserID      string
	SessionRef  string
	PaymentRef  string
	Signature   string
	AddressID   string
	PaymentType PaymentType
}

// CartService manages the authenticated user's cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// AddCartItemCommand adds a product variant to the cart, merging with an identical entry.
type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
	Size      *string
	Height    *string
}

// UpdateCartItemCommand sets the quantity of an existing item; zero removes it.
type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

// RemoveCartItemCommand removes an item from the cart.
type RemoveCartItemCommand struct {
	UserID string
	ItemID string
}

// SystemService exposes health reporting for probes.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// NotificationTemplate names the mail/SMS template rendered by the downstream mailer.
type NotificationTemplate string

const (
	NotificationOrderPlaced    NotificationTemplate = "order_placed"
	NotificationOrderReceived  NotificationTemplate = "order_received"
	NotificationOrderConfirmed NotificationTemplate = "order_confirmed"
	NotificationOrderCancelled NotificationTemplate = "order_cancelled"
)

// RecipientKind distinguishes the customer from the shop operator.
type RecipientKind string

const (
	RecipientCustomer RecipientKind = "customer"
	RecipientAdmin    RecipientKind = "admin"
)

// Notification is a request to inform a recipient about an order.
type Notification struct {
	Template NotificationTemplate
	Audience RecipientKind
	Order    Order
}

// NotificationRecipient is the resolved delivery address of a notification.
type NotificationRecipient struct {
	Kind  RecipientKind `json:"kind"`
	Email string        `json:"email,omitempty"`
	Phone string        `json:"phone,omitempty"`
}

// NotificationMessage is the payload handed to the Notifier.
type NotificationMessage struct {
	ID             string                `json:"id"`
	Template       NotificationTemplate  `json:"template"`
	Recipient      NotificationRecipient `json:"recipient"`
	Order          Order                 `json:"order"`
	FormattedTotal string                `json:"formattedTotal"`
	QueuedAt       time.Time             `json:"queuedAt"`
}

// Notifier delivers a notification message to the outbound channel.
type Notifier interface {
	Notify(ctx context.Context, message NotificationMessage) error
}

// NotificationDispatcher queues notifications for asynchronous delivery. Enqueue never blocks the
// caller on delivery and never reports delivery failures.
type NotificationDispatcher interface {
	Enqueue(ctx context.Context, notification Notification)
	Close(ctx context.Context) error
}

// OrderEventType names order domain events.
type OrderEventType string

const (
	OrderEventCreated       OrderEventType = "order.created"
	OrderEventStatusChanged OrderEventType = "order.status.changed"
	OrderEventFieldsUpdated OrderEventType = "order.fields.updated"
)

// OrderEvent is published for every order state change.
type OrderEvent struct {
	ID             string         `json:"id"`
	Type           OrderEventType `json:"type"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	Status         string         `json:"status"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	PaymentStatus  string         `json:"paymentStatus,omitempty"`
	Fields         []string       `json:"fields,omitempty"`
	GrandTotal     int64          `json:"grandTotal"`
	Currency       string         `json:"currency,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// Metrics records domain counters. platform/metrics.Recorder implements it.
type Metrics interface {
	CheckoutOutcome(operation, outcome string)
	PaymentVerification(result string)
	InventoryShortfall(productID string, units int)
	NotificationResult(template, result string)
	OrderTransition(from, to string)
}

// CheckoutLocker serialises checkouts of one user.
type CheckoutLocker interface {
	Acquire(ctx context.Context, userID string) (func(context.Context) error, error)
}

// PaymentVerifier checks provider-issued payment evidence.
type PaymentVerifier interface {
	VerifyEvidence(ctx context.Context, orderRef, paymentRef, signature string) (bool, error)
}

type noopMetrics struct{}

func (noopMetrics) CheckoutOutcome(string, string) {}
func (noopMetrics) PaymentVerification(string) {}
func (noopMetrics) InventoryShortfall(string, int) {}
func (noopMetrics) NotificationResult(string, string) {}
func (noopMetrics) OrderTransition(string, string) {}
