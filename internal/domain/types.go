package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Cart aggregates the mutable shopping cart state for a user. The cart document id is the user id.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsEmpty reports whether the cart holds no line items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// CartItem stores a single product/variant entry within a cart.
type CartItem struct {
	ID        string
	ProductID string
	Quantity  int
	Size      *string
	Height    *string
	AddedAt   time.Time
	UpdatedAt *time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was recorded but not yet confirmed.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment was verified or an operator confirmed the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared for fulfilment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted indicates the order was fulfilled.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order has been cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every recognised order status.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// PaymentStatus tracks the payment axis of an order independently from its lifecycle status.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
)

// PaymentStatuses lists every recognised payment status.
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusPartiallyPaid,
}

// PaymentType selects whether the provider charges the full total or a fixed advance.
type PaymentType string

const (
	PaymentTypeFull    PaymentType = "full"
	PaymentTypeAdvance PaymentType = "advance"
)

// PaymentMethod records how the order was (or will be) paid.
type PaymentMethod string

const (
	// PaymentMethodDirect marks orders paid out-of-band before placement.
	PaymentMethodDirect PaymentMethod = "direct"
	// PaymentMethodOnline marks orders paid in full through the payment provider.
	PaymentMethodOnline PaymentMethod = "online"
	// PaymentMethodCOD marks orders with an online advance and the remainder collected on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
)

// PaymentMethods lists every recognised payment method.
var PaymentMethods = []PaymentMethod{
	PaymentMethodDirect,
	PaymentMethodOnline,
	PaymentMethodCOD,
}

// Order captures the persisted order aggregate. Items, ShippingAddress, Contact and Totals are
// snapshots taken at placement time and are never rewritten afterwards.
type Order struct {
	ID                string
	OrderNumber       string
	UserID            string
	Status            OrderStatus
	PaymentStatus     PaymentStatus
	PaymentMethod     PaymentMethod
	PaymentType       PaymentType
	PaymentReference  string
	ProviderOrderID   string
	Currency          string
	Items             []OrderLineItem
	ShippingAddress   Address
	Contact           OrderContact
	Totals            OrderTotals
	Notes             string
	InventoryDeducted bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ConfirmedAt       *time.Time
	CancelledAt       *time.Time
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal            int64
	TaxAmount           int64
	GrandTotal          int64
	CODAdvancePayment   int64
	CODRemainingPayment int64
}

// OrderLineItem is the catalog snapshot of a cart item at the time of checkout.
type OrderLineItem struct {
	ProductID string
	Name      string
	ImageURL  string
	Size      *string
	Height    *string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// OrderContact stores the notification channels captured when the order was placed.
type OrderContact struct {
	Email string
	Phone string
}

// Reachable reports whether at least one notification channel is present.
func (c OrderContact) Reachable() bool {
	return c.Email != "" || c.Phone != ""
}

// Address represents postal address structures shared by user and order layers.
type Address struct {
	ID              string
	Recipient       string
	Line1           string
	Line2           *string
	City            string
	State           *string
	PostalCode      string
	Country         string
	Phone           *string
	DefaultShipping bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserProfile carries the subset of the user document the order core depends on.
type UserProfile struct {
	ID          string
	DisplayName string
	Email       string
	PhoneNumber string
	IsActive    bool
}

// Product is the catalog projection read during checkout and written by stock adjustments.
type Product struct {
	ID        string
	Name      string
	Price     int64
	Currency  string
	ImageURL  string
	Variants  []VariantStock
	InStock   bool
	UpdatedAt time.Time
}

// VariantStock is the available quantity for a normalized size label.
type VariantStock struct {
	Size     string
	Quantity int
}

// PaymentEvidence is the provider-issued triple asserting a payment occurred.
type PaymentEvidence struct {
	OrderRef   string
	PaymentRef string
	Signature  string
}

// PaymentIntent describes a provider payment session returned to the client.
type PaymentIntent struct {
	ProviderOrderID string
	Provider        string
	ClientSecret    string
	Amount          int64
	Currency        string
	PaymentType     PaymentType
	Totals          OrderTotals
}

// InventoryAdjustment reports the outcome of deducting one line item from variant stock.
type InventoryAdjustment struct {
	ProductID string
	Size      string
	Requested int
	Deducted  int
	Remaining int
	Shortfall int
	Error     string
}

// Health statuses reported by readiness probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthReport summarises dependency checks for readiness probes.
type SystemHealthReport struct {
	Status      string
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	Checks      map[string]SystemHealthCheck
	Features    map[string]bool
	GeneratedAt time.Time
}

// SystemHealthCheck records the outcome of a single dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}
