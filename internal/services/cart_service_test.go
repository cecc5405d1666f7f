package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

type memoryCartRepo struct {
	carts   map[string]domain.Cart
	tick    time.Time
	saves   int
	getErr  error
	saveErr error
}

func newMemoryCartRepo() *memoryCartRepo {
	return &memoryCartRepo{carts: map[string]domain.Cart{}, tick: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *memoryCartRepo) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	if r.getErr != nil {
		return domain.Cart{}, r.getErr
	}
	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, testRepoError{notFound: true}
	}
	return cart, nil
}

func (r *memoryCartRepo) SaveCart(_ context.Context, cart domain.Cart, expected *time.Time) (domain.Cart, error) {
	if r.saveErr != nil {
		return domain.Cart{}, r.saveErr
	}
	if stored, ok := r.carts[cart.UserID]; ok && expected != nil && !stored.UpdatedAt.Equal(*expected) {
		return domain.Cart{}, testRepoError{conflict: true}
	}
	r.tick = r.tick.Add(time.Second)
	cart.UpdatedAt = r.tick
	r.carts[cart.UserID] = cart
	r.saves++
	return cart, nil
}

func (r *memoryCartRepo) DeleteCart(_ context.Context, userID string, _ *time.Time) error {
	if _, ok := r.carts[userID]; !ok {
		return testRepoError{notFound: true}
	}
	delete(r.carts, userID)
	return nil
}

func newTestCartService(t *testing.T, repo *memoryCartRepo, products *memoryProductRepo) CartService {
	t.Helper()
	seq := 0
	deps := CartServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) },
		Currency:   "usd",
		IDGenerator: func() string {
			seq++
			return string(rune('A' + seq - 1))
		},
	}
	if products != nil {
		deps.Products = products
	}
	svc, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func TestCartServiceGetCartWithoutDocument(t *testing.T) {
	svc := newTestCartService(t, newMemoryCartRepo(), nil)
	cart, err := svc.GetCart(context.Background(), " user-1 ")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if cart.UserID != "user-1" || cart.Currency != "USD" || cart.Items == nil || len(cart.Items) != 0 {
		t.Fatalf("unexpected empty cart %+v", cart)
	}
}

func TestCartServiceAddItemMergesIdenticalLines(t *testing.T) {
	repo := newMemoryCartRepo()
	svc := newTestCartService(t, repo, nil)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prod_1", Quantity: 1, Size: sizePtr("M")}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	cart, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prod_1", Quantity: 2, Size: sizePtr(" m ")})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line with quantity 3, got %+v", cart.Items)
	}
	if cart.Items[0].ID != "cit_A" || *cart.Items[0].Size != "m" {
		t.Fatalf("unexpected item %+v", cart.Items[0])
	}

	cart, err = svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prod_1", Quantity: 1, Size: sizePtr("m"), Height: sizePtr("170cm")})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(cart.Items) != 2 || cart.Items[1].ID != "cit_B" {
		t.Fatalf("different height must create a new line, got %+v", cart.Items)
	}
}

func TestCartServiceAddItemValidation(t *testing.T) {
	products := newMemoryProductRepo(domain.Product{ID: "prod_1"})
	svc := newTestCartService(t, newMemoryCartRepo(), products)
	ctx := context.Background()

	cases := []AddCartItemCommand{
		{UserID: "", ProductID: "prod_1", Quantity: 1},
		{UserID: "user-1", ProductID: " ", Quantity: 1},
		{UserID: "user-1", ProductID: "prod_1", Quantity: 0},
		{UserID: "user-1", ProductID: "prod_1", Quantity: maxCartItemQuantity + 1},
		{UserID: "user-1", ProductID: "prod_missing", Quantity: 1},
	}
	for _, cmd := range cases {
		if _, err := svc.AddItem(ctx, cmd); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("%+v: expected ErrCartInvalidInput, got %v", cmd, err)
		}
	}
}

func TestCartServiceUpdateAndRemove(t *testing.T) {
	repo := newMemoryCartRepo()
	svc := newTestCartService(t, repo, nil)
	ctx := context.Background()

	if _, err := svc.UpdateItemQuantity(ctx, UpdateCartItemCommand{UserID: "user-1", ItemID: "cit_A", Quantity: 2}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prod_1", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	cart, err := svc.UpdateItemQuantity(ctx, UpdateCartItemCommand{UserID: "user-1", ItemID: "cit_A", Quantity: 4})
	if err != nil {
		t.Fatalf("UpdateItemQuantity: %v", err)
	}
	if cart.Items[0].Quantity != 4 || cart.Items[0].UpdatedAt == nil {
		t.Fatalf("unexpected item %+v", cart.Items[0])
	}
	if _, err := svc.UpdateItemQuantity(ctx, UpdateCartItemCommand{UserID: "user-1", ItemID: "cit_Z", Quantity: 1}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}

	cart, err = svc.UpdateItemQuantity(ctx, UpdateCartItemCommand{UserID: "user-1", ItemID: "cit_A", Quantity: 0})
	if err != nil {
		t.Fatalf("UpdateItemQuantity to zero: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("zero quantity must remove the item, got %+v", cart.Items)
	}
	if _, err := svc.RemoveItem(ctx, RemoveCartItemCommand{UserID: "user-1", ItemID: "cit_A"}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartServiceDetectsConcurrentEdit(t *testing.T) {
	repo := newMemoryCartRepo()
	repo.carts["user-1"] = domain.Cart{ID: "user-1", UserID: "user-1", UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	stale := &staleCartRepo{memoryCartRepo: repo, stale: repo.carts["user-1"]}
	repo.carts["user-1"] = domain.Cart{ID: "user-1", UserID: "user-1", UpdatedAt: time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC)}

	svc, err := NewCartService(CartServiceDeps{Repository: stale})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{UserID: "user-1", ProductID: "prod_1", Quantity: 1}); !errors.Is(err, ErrCartConflict) {
		t.Fatalf("expected ErrCartConflict, got %v", err)
	}
}

type staleCartRepo struct {
	*memoryCartRepo
	stale domain.Cart
}

func (r *staleCartRepo) GetCart(context.Context, string) (domain.Cart, error) {
	return r.stale, nil
}

func TestCartServiceClearCart(t *testing.T) {
	repo := newMemoryCartRepo()
	svc := newTestCartService(t, repo, nil)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "prod_1", Quantity: 1}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if err := svc.ClearCart(ctx, "user-1"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	if _, ok := repo.carts["user-1"]; ok {
		t.Fatalf("cart must be deleted")
	}
	if err := svc.ClearCart(ctx, "user-1"); err != nil {
		t.Fatalf("clearing a missing cart must succeed, got %v", err)
	}
}

func TestCartServiceMapsUnavailable(t *testing.T) {
	repo := newMemoryCartRepo()
	repo.getErr = testRepoError{unavailable: true}
	svc := newTestCartService(t, repo, nil)
	if _, err := svc.GetCart(context.Background(), "user-1"); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected ErrCartUnavailable, got %v", err)
	}
}
