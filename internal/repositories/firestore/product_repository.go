package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const productsCollection = "products"

// ProductRepository reads catalog products and owns their per-size stock.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID, doc.UpdateTime), nil
}

// FindByIDs batch-loads products. Missing ids are absent from the result map.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	seen := make(map[string]struct{}, len(productIDs))
	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return map[string]domain.Product{}, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	var snapshots []*firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snapshots, err = tx.GetAll(refs)
	} else {
		snapshots, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, pfirestore.WrapError("products.get_all", err)
	}

	products := make(map[string]domain.Product, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || !snap.Exists() {
			continue
		}
		doc, err := pfirestore.Decode[productDocument](snap)
		if err != nil {
			return nil, err
		}
		products[doc.ID] = doc.Data.toDomain(doc.ID, doc.UpdateTime)
	}
	return products, nil
}

// DeductVariantStock removes the requested units from each variant of productID inside one
// transaction. Quantities floor at zero and the shortfall is reported per line. A missing product
// yields Found=false without error.
func (r *ProductRepository) DeductVariantStock(ctx context.Context, productID string, deductions []repositories.VariantDeduction) (repositories.VariantDeductionResult, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return repositories.VariantDeductionResult{}, repositories.NewCodedError(repositories.StockErrorInvalidInput, "product id is required", nil)
	}
	if len(deductions) == 0 {
		return repositories.VariantDeductionResult{ProductID: id}, nil
	}

	var result repositories.VariantDeductionResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.VariantDeductionResult{ProductID: id}

		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", id, err)
		}
		result.Found = true

		variants := doc.variants()
		index := make(map[string]int, len(variants))
		for i, v := range variants {
			index[v.Size] = i
		}

		changed := false
		for _, d := range deductions {
			size := domain.NormalizeSize(d.Size)
			line := repositories.VariantDeductionLine{Size: size, Requested: d.Quantity}
			pos, ok := index[size]
			if !ok {
				result.Lines = append(result.Lines, line)
				continue
			}
			line.Tracked = true
			available := variants[pos].Quantity
			line.Deducted = min(available, d.Quantity)
			line.Shortfall = d.Quantity - line.Deducted
			variants[pos].Quantity = available - line.Deducted
			line.Remaining = variants[pos].Quantity
			if line.Deducted > 0 {
				changed = true
			}
			result.Lines = append(result.Lines, line)
		}

		result.InStock = domain.AnyInStock(variants)
		if !changed && result.InStock == doc.InStock {
			return nil
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "variants", Value: newVariantDocuments(variants)},
			{Path: "inStock", Value: result.InStock},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	})
	if err != nil {
		var coded *repositories.CodedError
		if errors.As(err, &coded) {
			return repositories.VariantDeductionResult{}, coded
		}
		return repositories.VariantDeductionResult{}, pfirestore.WrapError("products.deduct_stock", err)
	}
	return result, nil
}

// ReplaceVariants overwrites the variant stock of productID with the normalised variants.
func (r *ProductRepository) ReplaceVariants(ctx context.Context, productID string, variants []domain.VariantStock) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, repositories.NewCodedError(repositories.StockErrorInvalidInput, "product id is required", nil)
	}
	normalized := domain.NormalizeVariants(variants)
	now := time.Now().UTC()

	var product domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return repositories.NewCodedError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", id), err)
		}
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", id, err)
		}

		doc.Variants = newVariantDocuments(normalized)
		doc.InStock = domain.AnyInStock(normalized)
		doc.UpdatedAt = now
		if err := tx.Update(ref, []firestore.Update{
			{Path: "variants", Value: doc.Variants},
			{Path: "inStock", Value: doc.InStock},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		product = doc.toDomain(id, now)
		return nil
	})
	if err != nil {
		var coded *repositories.CodedError
		if errors.As(err, &coded) {
			return domain.Product{}, coded
		}
		return domain.Product{}, pfirestore.WrapError("products.replace_variants", err)
	}
	return product, nil
}

type productDocument struct {
	Name      string            `firestore:"name"`
	Price     int64             `firestore:"price"`
	Currency  string            `firestore:"currency"`
	ImageURL  string            `firestore:"imageUrl,omitempty"`
	Variants  []variantDocument `firestore:"variants"`
	InStock   bool              `firestore:"inStock"`
	UpdatedAt time.Time         `firestore:"updatedAt"`
}

type variantDocument struct {
	Size     string `firestore:"size"`
	Quantity int    `firestore:"quantity"`
}

func (d productDocument) variants() []domain.VariantStock {
	out := make([]domain.VariantStock, 0, len(d.Variants))
	for _, v := range d.Variants {
		out = append(out, domain.VariantStock{Size: v.Size, Quantity: v.Quantity})
	}
	return domain.NormalizeVariants(out)
}

func (d productDocument) toDomain(id string, updateTime time.Time) domain.Product {
	product := domain.Product{
		ID:        id,
		Name:      d.Name,
		Price:     d.Price,
		Currency:  d.Currency,
		ImageURL:  d.ImageURL,
		Variants:  d.variants(),
		InStock:   d.InStock,
		UpdatedAt: updateTime,
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = d.UpdatedAt
	}
	return product
}

func newVariantDocuments(variants []domain.VariantStock) []variantDocument {
	out := make([]variantDocument, 0, len(variants))
	for _, v := range variants {
		out = append(out, variantDocument{Size: v.Size, Quantity: v.Quantity})
	}
	return out
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
