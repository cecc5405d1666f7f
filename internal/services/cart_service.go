package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	cartItemIDPrefix    = "cit_"
	maxCartItemQuantity = 99
	maxCartItems        = 50
)

var errCartRepositoryRequired = errors.New("cart service: repository is required")

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartItemNotFound indicates the cart has no item with the given id.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// CartServiceDeps wires the repository dependencies for cart operations.
type CartServiceDeps struct {
	Repository  repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	Currency    string
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type cartService struct {
	repo     repositories.CartRepository
	products repositories.ProductRepository
	newID    func() string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		repo:     deps.Repository,
		products: deps.Products,
		newID:    idGen,
		now:      func() time.Time { return clock().UTC() },
		currency: strings.ToUpper(strings.TrimSpace(deps.Currency)),
		logger:   logger,
	}, nil
}

// GetCart returns the user's cart. A user without a cart document gets an empty, unsaved cart.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, _, err := s.load(ctx, uid)
	if err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// AddItem adds a product variant. An item with the same product, size and height absorbs the
// quantity instead of creating a second line.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product_id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxCartItemQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must not exceed %d", ErrCartInvalidInput, maxCartItemQuantity)
	}
	size := normalizeCartSize(cmd.Size)
	height := normalizeCartHeight(cmd.Height)

	if s.products != nil {
		if _, err := s.products.FindByID(ctx, productID); err != nil {
			if isRepoNotFound(err) {
				return Cart{}, fmt.Errorf("%w: product %s does not exist", ErrCartInvalidInput, productID)
			}
			return Cart{}, s.translateRepoError(err)
		}
	}

	cart, exists, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	original := cart.UpdatedAt
	now := s.now()

	items := cloneCartItems(cart.Items)
	idx := indexOfMergeableItem(items, productID, size, height)
	if idx >= 0 {
		items[idx].Quantity += cmd.Quantity
		if items[idx].Quantity > maxCartItemQuantity {
			return Cart{}, fmt.Errorf("%w: quantity must not exceed %d", ErrCartInvalidInput, maxCartItemQuantity)
		}
		ts := now
		items[idx].UpdatedAt = &ts
	} else {
		if len(items) >= maxCartItems {
			return Cart{}, fmt.Errorf("%w: cart holds at most %d items", ErrCartInvalidInput, maxCartItems)
		}
		items = append(items, domain.CartItem{
			ID:        cartItemIDPrefix + s.newID(),
			ProductID: productID,
			Quantity:  cmd.Quantity,
			Size:      size,
			Height:    height,
			AddedAt:   now,
		})
	}

	return s.save(ctx, cart, items, exists, original)
}

// UpdateItemQuantity sets the quantity of an item; zero removes the item.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, RemoveCartItemCommand{UserID: cmd.UserID, ItemID: cmd.ItemID})
	}
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if userID == "" || itemID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity < 0 || cmd.Quantity > maxCartItemQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 0 and %d", ErrCartInvalidInput, maxCartItemQuantity)
	}

	cart, exists, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if !exists {
		return Cart{}, ErrCartNotFound
	}

	items := cloneCartItems(cart.Items)
	idx := indexOfCartItem(items, itemID)
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	if items[idx].Quantity == cmd.Quantity {
		return cart, nil
	}
	items[idx].Quantity = cmd.Quantity
	ts := s.now()
	items[idx].UpdatedAt = &ts

	return s.save(ctx, cart, items, exists, cart.UpdatedAt)
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if userID == "" || itemID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, exists, err := s.load(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if !exists {
		return Cart{}, ErrCartNotFound
	}

	items := cloneCartItems(cart.Items)
	idx := indexOfCartItem(items, itemID)
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	items = append(items[:idx], items[idx+1:]...)

	return s.save(ctx, cart, items, exists, cart.UpdatedAt)
}

// ClearCart deletes the cart document. Clearing a missing cart succeeds.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	if err := s.repo.DeleteCart(ctx, uid, nil); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"userId": uid})
	return nil
}

// load returns the stored cart or a fresh one, reporting whether a document exists.
func (s *cartService) load(ctx context.Context, userID string) (Cart, bool, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return s.newCart(userID), false, nil
		}
		return Cart{}, false, s.translateRepoError(err)
	}
	cart.ID = userID
	cart.UserID = userID
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart, true, nil
}

// save writes items guarded by the update time the cart was read at.
func (s *cartService) save(ctx context.Context, cart Cart, items []domain.CartItem, exists bool, readAt time.Time) (Cart, error) {
	now := s.now()
	cart.Items = items
	cart.UpdatedAt = now
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}

	var expected *time.Time
	if exists {
		expected = expectedUpdate(readAt)
	}
	saved, err := s.repo.SaveCart(ctx, cart, expected)
	if err != nil {
		mapped := s.translateRepoError(err)
		if errors.Is(mapped, ErrCartConflict) {
			s.logger(ctx, "cart.save.conflict", map[string]any{"userId": cart.UserID})
		}
		return Cart{}, mapped
	}
	if saved.Items == nil {
		saved.Items = []domain.CartItem{}
	}
	return saved, nil
}

func (s *cartService) newCart(userID string) domain.Cart {
	return domain.Cart{
		ID:       userID,
		UserID:   userID,
		Currency: s.currency,
		Items:    []domain.CartItem{},
	}
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func normalizeCartSize(size *string) *string {
	if size == nil {
		return nil
	}
	normalized := domain.NormalizeSize(*size)
	if normalized == "" {
		return nil
	}
	return &normalized
}

func normalizeCartHeight(height *string) *string {
	if height == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*height)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func indexOfMergeableItem(items []domain.CartItem, productID string, size, height *string) int {
	for i, item := range items {
		if item.ProductID != productID {
			continue
		}
		if !equalStringPtr(normalizeCartSize(item.Size), size) {
			continue
		}
		if !equalStringPtr(normalizeCartHeight(item.Height), height) {
			continue
		}
		return i
	}
	return -1
}

func indexOfCartItem(items []domain.CartItem, itemID string) int {
	for i, item := range items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneCartItems(items []domain.CartItem) []domain.CartItem {
	cloned := make([]domain.CartItem, len(items))
	for i, item := range items {
		cloned[i] = item
		cloned[i].Size = cloneStringPtr(item.Size)
		cloned[i].Height = cloneStringPtr(item.Height)
		if item.UpdatedAt != nil {
			ts := *item.UpdatedAt
			cloned[i].UpdatedAt = &ts
		}
	}
	return cloned
}
