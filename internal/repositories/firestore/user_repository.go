package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const userCollection = "users"

// UserRepository reads user profiles for contact resolution.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{base: pfirestore.NewBaseRepository[userDocument](provider, userCollection)}, nil
}

// FindByID loads the profile of userID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{
		ID:          doc.ID,
		DisplayName: strings.TrimSpace(doc.Data.DisplayName),
		Email:       strings.TrimSpace(doc.Data.Email),
		PhoneNumber: strings.TrimSpace(doc.Data.PhoneNumber),
		IsActive:    doc.Data.IsActive == nil || *doc.Data.IsActive,
	}, nil
}

type userDocument struct {
	DisplayName string    `firestore:"displayName"`
	Email       string    `firestore:"email,omitempty"`
	PhoneNumber string    `firestore:"phoneNumber,omitempty"`
	IsActive    *bool     `firestore:"isActive,omitempty"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

var _ repositories.UserRepository = (*UserRepository)(nil)
