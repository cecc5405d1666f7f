//go:build integration

package firestore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hanko-field/storefront/internal/platform/firestore/firestoretest"
	"github.com/hanko-field/storefront/internal/repositories"
)

func TestCounterRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	provider := firestoretest.NewProvider(t)

	repo, err := NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("new counter repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 16
	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			value, err := repo.Next(ctx, "orders", 1)
			if err != nil {
				t.Errorf("next(%d): %v", idx, err)
				return
			}
			results[idx] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, val := range results {
		if val != int64(i+1) {
			t.Fatalf("expected gapless sequence, got %v", results)
		}
	}

	limit := int64(2)
	if err := repo.Configure(ctx, "bounded", repositories.CounterConfig{Step: 1, MaxValue: &limit}); err != nil {
		t.Fatalf("configure counter: %v", err)
	}
	for i := int64(1); i <= limit; i++ {
		if v, err := repo.Next(ctx, "bounded", 0); err != nil || v != i {
			t.Fatalf("next bounded %d: got %d, %v", i, v, err)
		}
	}
	_, err = repo.Next(ctx, "bounded", 0)
	var coded *repositories.CodedError
	if !errors.As(err, &coded) || coded.Code != repositories.CounterErrorExhausted {
		t.Fatalf("expected exhausted counter, got %v", err)
	}
}
