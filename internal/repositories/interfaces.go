package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Products() ProductRepository
	Orders() OrderRepository
	Users() UserRepository
	Addresses() AddressRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns the cart document of a user, including its embedded items.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	// SaveCart replaces the cart document. When expectedUpdate is non-nil the write is rejected with
	// a conflict if the stored document changed since that time.
	SaveCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	// DeleteCart removes the cart; a non-nil expectedUpdate rejects the delete when the cart changed.
	DeleteCart(ctx context.Context, userID string, expectedUpdate *time.Time) error
}

// ProductRepository reads catalog products and mutates their variant stock atomically.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// DeductVariantStock applies all deductions for one product inside a single transaction,
	// flooring each variant at zero and recomputing the in-stock flag.
	DeductVariantStock(ctx context.Context, productID string, deductions []VariantDeduction) (VariantDeductionResult, error)
	ReplaceVariants(ctx context.Context, productID string, variants []domain.VariantStock) (domain.Product, error)
}

// VariantDeduction requests removing Quantity units from the variant keyed by Size.
type VariantDeduction struct {
	Size     string
	Quantity int
}

// VariantDeductionResult describes the committed outcome of a product stock deduction.
type VariantDeductionResult struct {
	ProductID string
	Found     bool
	Lines     []VariantDeductionLine
	InStock   bool
}

// VariantDeductionLine is the per-request outcome; Tracked is false when the size has no stock entry.
type VariantDeductionLine struct {
	Size      string
	Tracked   bool
	Requested int
	Deducted  int
	Remaining int
	Shortfall int
}

// OrderRepository persists order aggregates.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update writes the mutable order fields; a non-nil expectedUpdate enforces optimistic
	// concurrency. The returned order carries the committed UpdatedAt.
	Update(ctx context.Context, order domain.Order, expectedUpdate *time.Time) (domain.Order, error)
	// ClaimInventoryDeduction atomically flips InventoryDeducted from false to true and reports
	// whether this caller performed the flip.
	ClaimInventoryDeduction(ctx context.Context, orderID string, now time.Time) (bool, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// FindPaymentSession returns the id of the order that redeemed providerOrderID, or a not found
	// error when the session is unused. Inside a transaction it must run before any write.
	FindPaymentSession(ctx context.Context, providerOrderID string) (string, error)
	// ReservePaymentSession marks providerOrderID as redeemed by orderID. The write fails at commit
	// when the session was already reserved.
	ReservePaymentSession(ctx context.Context, providerOrderID, orderID string, at time.Time) error
}

// OrderListFilter restricts order listing queries.
type OrderListFilter struct {
	UserID     string
	Status     []string
	Pagination domain.Pagination
}

// UserRepository reads user profiles for contact resolution.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
}

// AddressRepository resolves addresses from a user's address collection.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	FindByID(ctx context.Context, userID string, addressID string) (domain.Address, error)
	FindDefaultShipping(ctx context.Context, userID string) (domain.Address, error)
}

// CounterRepository provides atomic sequence generation.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig holds optional settings applied to a counter document.
type CounterConfig struct {
	Step     int64
	MaxValue *int64
}

// HealthRepository probes backing services for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
