package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const cartCollection = "carts"

// CartRepository stores one cart document per user with its items embedded.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

// GetCart loads the cart of userID. A missing cart is reported as not found.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID, doc.UpdateTime), nil
}

// SaveCart replaces the cart document, guarded by expectedUpdate when supplied.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		uid = strings.TrimSpace(cart.ID)
	}
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	doc := newCartDocument(uid, cart, now)

	var updateTime time.Time
	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := r.base.Set(ctx, uid, doc)
		if err != nil {
			return domain.Cart{}, err
		}
		updateTime = result.UpdateTime
	} else {
		result, err := r.base.Update(ctx, uid, []firestore.Update{
			{Path: "userId", Value: doc.UserID},
			{Path: "currency", Value: doc.Currency},
			{Path: "items", Value: doc.Items},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}, firestore.LastUpdateTime(expectedUpdate.UTC()))
		if err != nil {
			return domain.Cart{}, err
		}
		updateTime = result.UpdateTime
	}
	if updateTime.IsZero() {
		updateTime = now
	}
	return doc.toDomain(uid, updateTime), nil
}

// DeleteCart removes the cart of userID. Deleting a missing cart is not an error.
func (r *CartRepository) DeleteCart(ctx context.Context, userID string, expectedUpdate *time.Time) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	var opts []firestore.Precondition
	if expectedUpdate != nil && !expectedUpdate.IsZero() {
		opts = append(opts, firestore.LastUpdateTime(expectedUpdate.UTC()))
	}
	return r.base.Delete(ctx, uid, opts...)
}

type cartDocument struct {
	UserID    string             `firestore:"userId"`
	Currency  string             `firestore:"currency"`
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string     `firestore:"id"`
	ProductID string     `firestore:"productId"`
	Quantity  int        `firestore:"quantity"`
	Size      *string    `firestore:"size,omitempty"`
	Height    *string    `firestore:"height,omitempty"`
	AddedAt   time.Time  `firestore:"addedAt"`
	UpdatedAt *time.Time `firestore:"updatedAt,omitempty"`
}

func newCartDocument(uid string, cart domain.Cart, now time.Time) cartDocument {
	created := cart.CreatedAt.UTC()
	if created.IsZero() {
		created = now
	}
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Height:    item.Height,
			AddedAt:   item.AddedAt.UTC(),
			UpdatedAt: item.UpdatedAt,
		})
	}
	return cartDocument{
		UserID:    uid,
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     items,
		CreatedAt: created,
		UpdatedAt: now,
	}
}

func (d cartDocument) toDomain(id string, updateTime time.Time) domain.Cart {
	cart := domain.Cart{
		ID:        id,
		UserID:    id,
		Currency:  d.Currency,
		Items:     make([]domain.CartItem, 0, len(d.Items)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: updateTime,
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = d.UpdatedAt
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Height:    item.Height,
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return cart
}

var _ repositories.CartRepository = (*CartRepository)(nil)
