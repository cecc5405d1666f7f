package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// memoryProductRepo applies deductions the way the Firestore repository does.
type memoryProductRepo struct {
	products  map[string]domain.Product
	failFor   map[string]error
	deductLog []string
	findErr   error
}

func newMemoryProductRepo(products ...domain.Product) *memoryProductRepo {
	repo := &memoryProductRepo{products: map[string]domain.Product{}, failFor: map[string]error{}}
	for _, p := range products {
		p.Variants = domain.NormalizeVariants(p.Variants)
		p.InStock = domain.AnyInStock(p.Variants)
		repo.products[p.ID] = p
	}
	return repo
}

func (r *memoryProductRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	if r.findErr != nil {
		return domain.Product{}, r.findErr
	}
	p, ok := r.products[productID]
	if !ok {
		return domain.Product{}, testRepoError{notFound: true}
	}
	return p, nil
}

func (r *memoryProductRepo) FindByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	result := map[string]domain.Product{}
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (r *memoryProductRepo) DeductVariantStock(_ context.Context, productID string, deductions []repositories.VariantDeduction) (repositories.VariantDeductionResult, error) {
	r.deductLog = append(r.deductLog, productID)
	if err := r.failFor[productID]; err != nil {
		return repositories.VariantDeductionResult{}, err
	}
	result := repositories.VariantDeductionResult{ProductID: productID}
	p, ok := r.products[productID]
	if !ok {
		return result, nil
	}
	result.Found = true
	for _, d := range deductions {
		size := domain.NormalizeSize(d.Size)
		line := repositories.VariantDeductionLine{Size: size, Requested: d.Quantity}
		for i := range p.Variants {
			if p.Variants[i].Size != size {
				continue
			}
			line.Tracked = true
			available := p.Variants[i].Quantity
			line.Deducted = min(available, d.Quantity)
			line.Shortfall = d.Quantity - line.Deducted
			p.Variants[i].Quantity = available - line.Deducted
			line.Remaining = p.Variants[i].Quantity
		}
		result.Lines = append(result.Lines, line)
	}
	p.InStock = domain.AnyInStock(p.Variants)
	result.InStock = p.InStock
	r.products[productID] = p
	return result, nil
}

func (r *memoryProductRepo) ReplaceVariants(_ context.Context, productID string, variants []domain.VariantStock) (domain.Product, error) {
	p, ok := r.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewCodedError(repositories.StockErrorProductNotFound, "missing", nil)
	}
	p.Variants = domain.NormalizeVariants(variants)
	p.InStock = domain.AnyInStock(p.Variants)
	r.products[productID] = p
	return p, nil
}

type testRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e testRepoError) Error() string       { return "repo error" }
func (e testRepoError) IsNotFound() bool    { return e.notFound }
func (e testRepoError) IsConflict() bool    { return e.conflict }
func (e testRepoError) IsUnavailable() bool { return e.unavailable }

type recordingMetrics struct {
	noopMetrics
	shortfalls  map[string]int
	outcomes    []string
	verifies    []string
	transitions []string
}

func (m *recordingMetrics) InventoryShortfall(productID string, units int) {
	if m.shortfalls == nil {
		m.shortfalls = map[string]int{}
	}
	m.shortfalls[productID] += units
}

func (m *recordingMetrics) CheckoutOutcome(operation, outcome string) {
	m.outcomes = append(m.outcomes, operation+":"+outcome)
}

func (m *recordingMetrics) PaymentVerification(result string) {
	m.verifies = append(m.verifies, result)
}

func (m *recordingMetrics) OrderTransition(from, to string) {
	m.transitions = append(m.transitions, from+"->"+to)
}

func sizePtr(v string) *string { return &v }

func TestInventoryLedgerDeductsAndFloorsAtZero(t *testing.T) {
	repo := newMemoryProductRepo(domain.Product{
		ID:       "prod_shirt",
		Variants: []domain.VariantStock{{Size: "M", Quantity: 5}, {Size: "L", Quantity: 1}},
	})
	metrics := &recordingMetrics{}
	var events []string
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{
		Products: repo,
		Metrics:  metrics,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("NewInventoryLedger: %v", err)
	}

	report, err := ledger.ReserveAndDeduct(context.Background(), "ord_1", []OrderLineItem{
		{ProductID: "prod_shirt", Size: sizePtr(" m "), Quantity: 2},
		{ProductID: "prod_shirt", Size: sizePtr("L"), Quantity: 1000},
	})
	if err != nil {
		t.Fatalf("ReserveAndDeduct: %v", err)
	}
	if len(report.Adjustments) != 2 {
		t.Fatalf("expected two adjustments, got %+v", report.Adjustments)
	}
	medium := report.Adjustments[0]
	if medium.Size != "m" || medium.Deducted != 2 || medium.Remaining != 3 {
		t.Fatalf("unexpected medium adjustment %+v", medium)
	}
	large := report.Adjustments[1]
	if large.Deducted != 1 || large.Remaining != 0 || large.Shortfall != 999 {
		t.Fatalf("unexpected large adjustment %+v", large)
	}
	if metrics.shortfalls["prod_shirt"] != 999 {
		t.Fatalf("expected shortfall metric, got %+v", metrics.shortfalls)
	}
	if len(events) != 1 || events[0] != eventInventoryShortfall {
		t.Fatalf("expected shortfall warning, got %v", events)
	}
	for _, v := range repo.products["prod_shirt"].Variants {
		if v.Quantity < 0 {
			t.Fatalf("variant %s went negative", v.Size)
		}
	}
	if report.Failed() {
		t.Fatalf("report should not be failed")
	}
}

func TestInventoryLedgerDeductsAtLeastOneUnit(t *testing.T) {
	repo := newMemoryProductRepo(domain.Product{ID: "prod_1", Variants: []domain.VariantStock{{Size: "s", Quantity: 3}}})
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: repo})
	if err != nil {
		t.Fatalf("NewInventoryLedger: %v", err)
	}
	report, err := ledger.ReserveAndDeduct(context.Background(), "ord_1", []OrderLineItem{
		{ProductID: "prod_1", Size: sizePtr("S"), Quantity: 0},
	})
	if err != nil {
		t.Fatalf("ReserveAndDeduct: %v", err)
	}
	if report.Adjustments[0].Deducted != 1 || report.Adjustments[0].Remaining != 2 {
		t.Fatalf("expected one unit deducted, got %+v", report.Adjustments[0])
	}
}

func TestInventoryLedgerSkipsUntrackedStock(t *testing.T) {
	repo := newMemoryProductRepo(domain.Product{ID: "prod_tracked", Variants: []domain.VariantStock{{Size: "m", Quantity: 2}}})
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: repo})
	if err != nil {
		t.Fatalf("NewInventoryLedger: %v", err)
	}

	report, err := ledger.ReserveAndDeduct(context.Background(), "ord_1", []OrderLineItem{
		{ProductID: "prod_missing", Size: sizePtr("m"), Quantity: 1},
		{ProductID: "prod_tracked", Size: sizePtr("xl"), Quantity: 1},
		{ProductID: "prod_tracked", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("ReserveAndDeduct: %v", err)
	}
	if len(report.Adjustments) != 0 {
		t.Fatalf("expected no adjustments, got %+v", report.Adjustments)
	}
	if repo.products["prod_tracked"].Variants[0].Quantity != 2 {
		t.Fatalf("untracked size must not change stock")
	}
}

func TestInventoryLedgerReportsPerProductFailures(t *testing.T) {
	repo := newMemoryProductRepo(
		domain.Product{ID: "prod_a", Variants: []domain.VariantStock{{Size: "m", Quantity: 2}}},
		domain.Product{ID: "prod_b", Variants: []domain.VariantStock{{Size: "m", Quantity: 2}}},
	)
	repo.failFor["prod_a"] = errors.New("deadline exceeded")
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: repo})
	if err != nil {
		t.Fatalf("NewInventoryLedger: %v", err)
	}

	report, err := ledger.ReserveAndDeduct(context.Background(), "ord_1", []OrderLineItem{
		{ProductID: "prod_a", Size: sizePtr("m"), Quantity: 1},
		{ProductID: "prod_b", Size: sizePtr("m"), Quantity: 1},
	})
	if err != nil {
		t.Fatalf("ReserveAndDeduct: %v", err)
	}
	if !report.Failed() {
		t.Fatalf("expected failed report")
	}
	if report.Adjustments[0].ProductID != "prod_a" || report.Adjustments[0].Error == "" {
		t.Fatalf("expected prod_a failure entry, got %+v", report.Adjustments[0])
	}
	if report.Adjustments[1].ProductID != "prod_b" || report.Adjustments[1].Deducted != 1 {
		t.Fatalf("expected prod_b to be deducted, got %+v", report.Adjustments[1])
	}
	if repo.products["prod_b"].Variants[0].Quantity != 1 {
		t.Fatalf("prod_b stock should be persisted")
	}
}

func TestInventoryLedgerSetVariantsCollapsesDuplicates(t *testing.T) {
	repo := newMemoryProductRepo(domain.Product{ID: "prod_1"})
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: repo})
	if err != nil {
		t.Fatalf("NewInventoryLedger: %v", err)
	}

	product, err := ledger.SetVariants(context.Background(), SetVariantsCommand{
		ProductID: "prod_1",
		Variants:  []VariantStock{{Size: "M", Quantity: 5}, {Size: "m", Quantity: 0}},
	})
	if err != nil {
		t.Fatalf("SetVariants: %v", err)
	}
	if len(product.Variants) != 1 || product.Variants[0].Size != "m" || product.Variants[0].Quantity != 0 {
		t.Fatalf("expected single collapsed variant, got %+v", product.Variants)
	}
	if product.InStock {
		t.Fatalf("expected out of stock")
	}

	if _, err := ledger.SetVariants(context.Background(), SetVariantsCommand{ProductID: "prod_1", Variants: []VariantStock{{Size: "s", Quantity: -1}}}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := ledger.SetVariants(context.Background(), SetVariantsCommand{ProductID: "prod_x", Variants: []VariantStock{{Size: "s", Quantity: 1}}}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
}
