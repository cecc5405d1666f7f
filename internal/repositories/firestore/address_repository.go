package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository reads the address book stored under each user document.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns every address of userID, most recently updated first.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	base, err := r.base(userID)
	if err != nil {
		return nil, err
	}
	docs, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("updatedAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Address, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// FindByID loads a single address of userID.
func (r *AddressRepository) FindByID(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	base, err := r.base(userID)
	if err != nil {
		return domain.Address{}, err
	}
	doc, err := base.Get(ctx, strings.TrimSpace(addressID))
	if err != nil {
		return domain.Address{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindDefaultShipping returns the address flagged as default shipping. Not found when none is flagged.
func (r *AddressRepository) FindDefaultShipping(ctx context.Context, userID string) (domain.Address, error) {
	base, err := r.base(userID)
	if err != nil {
		return domain.Address{}, err
	}
	docs, err := base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("defaultShipping", "==", true).Limit(1)
	})
	if err != nil {
		return domain.Address{}, err
	}
	if len(docs) == 0 {
		return domain.Address{}, pfirestore.NotFound("addresses.default_shipping", "no default shipping address")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *AddressRepository) base(userID string) (*pfirestore.BaseRepository[addressDocument], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	return pfirestore.NewBaseRepository[addressDocument](r.provider, fmt.Sprintf(addressCollectionPattern, uid)), nil
}

// addressDocument doubles as the shipping snapshot embedded in orders.
type addressDocument struct {
	ID              string    `firestore:"id,omitempty"`
	Recipient       string    `firestore:"recipient"`
	Line1           string    `firestore:"line1"`
	Line2           *string   `firestore:"line2,omitempty"`
	City            string    `firestore:"city"`
	State           *string   `firestore:"state,omitempty"`
	PostalCode      string    `firestore:"postalCode"`
	Country         string    `firestore:"country"`
	Phone           *string   `firestore:"phone,omitempty"`
	DefaultShipping bool      `firestore:"defaultShipping"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		ID:              a.ID,
		Recipient:       a.Recipient,
		Line1:           a.Line1,
		Line2:           a.Line2,
		City:            a.City,
		State:           a.State,
		PostalCode:      a.PostalCode,
		Country:         a.Country,
		Phone:           a.Phone,
		DefaultShipping: a.DefaultShipping,
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
	}
}

func (d addressDocument) toDomain(id string) domain.Address {
	if id == "" {
		id = d.ID
	}
	return domain.Address{
		ID:              id,
		Recipient:       d.Recipient,
		Line1:           d.Line1,
		Line2:           d.Line2,
		City:            d.City,
		State:           d.State,
		PostalCode:      d.PostalCode,
		Country:         d.Country,
		Phone:           d.Phone,
		DefaultShipping: d.DefaultShipping,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
