//go:build integration

package firestore

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/firestore/firestoretest"
	"github.com/hanko-field/storefront/internal/repositories"
)

func TestProductRepositoryStockIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	provider := firestoretest.NewProvider(t)
	repo, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	_, err = client.Collection(productsCollection).Doc("tee").Set(ctx, productDocument{
		Name:     "Tee",
		Price:    50000,
		Currency: "JPY",
		Variants: []variantDocument{{Size: "m", Quantity: 10}, {Size: "l", Quantity: 1}},
		InStock:  true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := repo.DeductVariantStock(ctx, "tee", []repositories.VariantDeduction{{Size: "M", Quantity: 1}}); err != nil {
				t.Errorf("deduct: %v", err)
			}
		}()
	}
	wg.Wait()

	product, err := repo.FindByID(ctx, "tee")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if got := product.Variants[0].Quantity; got != 2 {
		t.Fatalf("expected 2 units left after concurrent deductions, got %d", got)
	}

	result, err := repo.DeductVariantStock(ctx, "tee", []repositories.VariantDeduction{
		{Size: "l", Quantity: 3},
		{Size: "m", Quantity: 2},
		{Size: "xl", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("deduct oversell: %v", err)
	}
	if result.Lines[0].Shortfall != 2 || result.Lines[0].Remaining != 0 {
		t.Fatalf("expected floor at zero with shortfall, got %+v", result.Lines[0])
	}
	if result.Lines[2].Tracked {
		t.Fatalf("expected untracked size, got %+v", result.Lines[2])
	}
	if result.InStock {
		t.Fatalf("expected product out of stock")
	}

	missing, err := repo.DeductVariantStock(ctx, "ghost", []repositories.VariantDeduction{{Size: "m", Quantity: 1}})
	if err != nil || missing.Found {
		t.Fatalf("expected missing product without error, got %+v %v", missing, err)
	}

	updated, err := repo.ReplaceVariants(ctx, "tee", []domain.VariantStock{{Size: "M", Quantity: 1}, {Size: " m ", Quantity: 4}})
	if err != nil {
		t.Fatalf("replace variants: %v", err)
	}
	if len(updated.Variants) != 1 || updated.Variants[0].Quantity != 4 || !updated.InStock {
		t.Fatalf("unexpected variants %+v", updated.Variants)
	}
}
