package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	eventInventoryShortfall = "inventory.deduct.shortfall"
	eventInventoryFailed    = "inventory.deduct.failed"
	eventInventoryVariants  = "inventory.variants.replaced"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrProductNotFound indicates the catalog product does not exist.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrInventoryUnavailable indicates the catalog store could not be reached.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")
)

// InventoryLedgerDeps bundles the collaborators required to construct the inventory ledger.
type InventoryLedgerDeps struct {
	Products repositories.ProductRepository
	Metrics  Metrics
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryLedger struct {
	products repositories.ProductRepository
	metrics  Metrics
	logger   func(context.Context, string, map[string]any)
}

// NewInventoryLedger wires dependencies into a concrete InventoryLedger implementation.
func NewInventoryLedger(deps InventoryLedgerDeps) (InventoryLedger, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory ledger: product repository is required")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryLedger{
		products: deps.Products,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// ReserveAndDeduct removes max(1, quantity) units per line from the matching variant. Each product
// is written in its own transaction; a failed product is reported on its entries and the remaining
// products are still processed. Stock is never driven below zero and oversell is only logged.
func (l *inventoryLedger) ReserveAndDeduct(ctx context.Context, orderID string, lines []OrderLineItem) (InventoryReport, error) {
	report := InventoryReport{OrderID: strings.TrimSpace(orderID)}
	if report.OrderID == "" {
		return report, fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}

	order, grouped := groupDeductions(lines)
	for _, productID := range order {
		deductions := grouped[productID]
		result, err := l.products.DeductVariantStock(ctx, productID, deductions)
		if err != nil {
			l.logger(ctx, eventInventoryFailed, map[string]any{
				"orderId":   report.OrderID,
				"productId": productID,
				"error":     err.Error(),
			})
			for _, d := range deductions {
				report.Adjustments = append(report.Adjustments, InventoryAdjustment{
					ProductID: productID,
					Size:      d.Size,
					Requested: d.Quantity,
					Error:     err.Error(),
				})
			}
			continue
		}
		if !result.Found {
			continue
		}
		for _, line := range result.Lines {
			if !line.Tracked {
				continue
			}
			if line.Shortfall > 0 {
				l.metrics.InventoryShortfall(productID, line.Shortfall)
				l.logger(ctx, eventInventoryShortfall, map[string]any{
					"orderId":   report.OrderID,
					"productId": productID,
					"size":      line.Size,
					"requested": line.Requested,
					"shortfall": line.Shortfall,
				})
			}
			report.Adjustments = append(report.Adjustments, InventoryAdjustment{
				ProductID: productID,
				Size:      line.Size,
				Requested: line.Requested,
				Deducted:  line.Deducted,
				Remaining: line.Remaining,
				Shortfall: line.Shortfall,
			})
		}
	}
	return report, nil
}

func (l *inventoryLedger) SetVariants(ctx context.Context, cmd SetVariantsCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	for _, v := range cmd.Variants {
		if domain.NormalizeSize(v.Size) == "" {
			return Product{}, fmt.Errorf("%w: variant size is required", ErrInventoryInvalidInput)
		}
		if v.Quantity < 0 {
			return Product{}, fmt.Errorf("%w: variant %q quantity must not be negative", ErrInventoryInvalidInput, v.Size)
		}
	}

	product, err := l.products.ReplaceVariants(ctx, productID, cmd.Variants)
	if err != nil {
		return Product{}, l.mapRepositoryError(err)
	}
	l.logger(ctx, eventInventoryVariants, map[string]any{
		"productId": productID,
		"variants":  len(product.Variants),
		"inStock":   product.InStock,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return product, nil
}

func (l *inventoryLedger) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
		}
	}
	var coded *repositories.CodedError
	if errors.As(err, &coded) && coded.Code == repositories.StockErrorInvalidInput {
		return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, coded.Message)
	}
	return err
}

// groupDeductions buckets lines by product, keeping first-seen product order. Lines without a size
// cannot match a tracked variant and are dropped.
func groupDeductions(lines []OrderLineItem) ([]string, map[string][]repositories.VariantDeduction) {
	var order []string
	grouped := make(map[string][]repositories.VariantDeduction)
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" || line.Size == nil {
			continue
		}
		size := domain.NormalizeSize(*line.Size)
		if size == "" {
			continue
		}
		if _, ok := grouped[productID]; !ok {
			order = append(order, productID)
		}
		grouped[productID] = append(grouped[productID], repositories.VariantDeduction{
			Size:     size,
			Quantity: max(1, line.Quantity),
		})
	}
	return order, grouped
}
