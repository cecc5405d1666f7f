//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gcfirestore "cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/firestore/firestoretest"
	"github.com/hanko-field/storefront/internal/repositories"
)

func TestOrderRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	provider := firestoretest.NewProvider(t)
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		order := domain.Order{
			ID:            fmt.Sprintf("ord_%02d", i),
			UserID:        "user-1",
			Status:        domain.OrderStatusProcessing,
			PaymentStatus: domain.PaymentStatusPaid,
			Currency:      "JPY",
			Items:         []domain.OrderLineItem{{ProductID: "tee", Quantity: 1, UnitPrice: 500, Total: 500}},
			Totals:        domain.OrderTotals{Subtotal: 500, GrandTotal: 500},
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:     base,
		}
		if err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	if err := repo.Insert(ctx, domain.Order{ID: "ord_00"}); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}

	page, err := repo.List(ctx, repositories.OrderListFilter{UserID: "user-1", Pagination: domain.Pagination{PageSize: 3}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 3 || page.Items[0].ID != "ord_04" || page.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", page)
	}
	next, err := repo.List(ctx, repositories.OrderListFilter{UserID: "user-1", Pagination: domain.Pagination{PageSize: 3, PageToken: page.NextPageToken}})
	if err != nil {
		t.Fatalf("list next: %v", err)
	}
	if len(next.Items) != 2 || next.Items[0].ID != "ord_01" || next.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", next)
	}

	current, err := repo.FindByID(ctx, "ord_01")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	stale := current.UpdatedAt
	current.Status = domain.OrderStatusConfirmed
	if _, err := repo.Update(ctx, current, &stale); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, err = repo.Update(ctx, current, &stale)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on stale precondition, got %v", err)
	}

	claimed, err := repo.ClaimInventoryDeduction(ctx, "ord_01", time.Now())
	if err != nil || !claimed {
		t.Fatalf("first claim: %v %v", claimed, err)
	}
	claimed, err = repo.ClaimInventoryDeduction(ctx, "ord_01", time.Now())
	if err != nil || claimed {
		t.Fatalf("second claim must not succeed: %v %v", claimed, err)
	}
}

func TestOrderRepositoryPaymentSessionsIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	provider := firestoretest.NewProvider(t)
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session := fmt.Sprintf("pi_%d", time.Now().UnixNano())
	if _, err := repo.FindPaymentSession(ctx, session); !isNotFound(err) {
		t.Fatalf("expected unused session, got %v", err)
	}

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := provider.RunTransaction(ctx, func(txCtx context.Context, _ *gcfirestore.Transaction) error {
		if _, err := repo.FindPaymentSession(txCtx, session); !isNotFound(err) {
			return fmt.Errorf("lookup in tx: %w", err)
		}
		return repo.ReservePaymentSession(txCtx, session, "ord_first", now)
	}); err != nil {
		t.Fatalf("reserve session: %v", err)
	}

	orderID, err := repo.FindPaymentSession(ctx, session)
	if err != nil || orderID != "ord_first" {
		t.Fatalf("expected session redeemed by ord_first, got %q err=%v", orderID, err)
	}

	err = repo.ReservePaymentSession(ctx, session, "ord_second", now)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on second reservation, got %v", err)
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
