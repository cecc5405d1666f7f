//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/firestore/firestoretest"
)

type sampleEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestProviderAndRepositoryIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	repo := pfirestore.NewBaseRepository[sampleEntity](provider, "samples")

	if err := repo.Create(ctx, "sample-1", sampleEntity{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	err := repo.Create(ctx, "sample-1", sampleEntity{Name: "dup"})
	var cls interface{ IsConflict() bool }
	if !errors.As(err, &cls) || !cls.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	if _, err := repo.Update(ctx, "sample-1", []firestore.Update{{Path: "count", Value: 2}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	err = provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := repo.Get(ctx, "sample-1")
		if err != nil {
			return err
		}
		doc.Data.Count++
		// nested transactions join the outer one
		return provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
			_, err := repo.Set(ctx, "sample-1", doc.Data)
			return err
		})
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	doc, err := repo.Get(ctx, "sample-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Data.Count != 3 {
		t.Fatalf("expected count=3 after txn, got %d", doc.Data.Count)
	}

	if err := repo.Delete(ctx, "sample-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_, err = repo.Get(ctx, "sample-1")
	var nf interface{ IsNotFound() bool }
	if !errors.As(err, &nf) || !nf.IsNotFound() {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	cancelCtx, cancelTxn := context.WithCancel(context.Background())
	cancelTxn()
	if err := provider.RunTransaction(cancelCtx, func(context.Context, *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}
