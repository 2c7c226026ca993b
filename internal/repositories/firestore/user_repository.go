package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/roastline/api/internal/domain"
	pfirestore "github.com/roastline/api/internal/platform/firestore"
)

const usersCollection = "users"

// UserRepository persists account profiles in the users collection.
type UserRepository struct {
	users *pfirestore.Collection[userDocument]
}

func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		users: pfirestore.NewCollection[userDocument](provider, usersCollection, nil, nil),
	}, nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, errors.New("user find: id is required")
	}

	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	profile.ID = strings.TrimSpace(profile.ID)
	if profile.ID == "" {
		return domain.UserProfile{}, errors.New("user update: id is required")
	}

	if _, err := r.users.Set(ctx, profile.ID, newUserDocument(profile)); err != nil {
		return domain.UserProfile{}, err
	}
	return profile, nil
}

type userDocument struct {
	Email       string              `firestore:"email"`
	DisplayName string              `firestore:"displayName"`
	Phone       string              `firestore:"phone,omitempty"`
	Address     string              `firestore:"address,omitempty"`
	Coordinate  *coordinateDocument `firestore:"coordinate,omitempty"`
	Language    string              `firestore:"language,omitempty"`
	Roles       []string            `firestore:"roles,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
}

func newUserDocument(profile domain.UserProfile) userDocument {
	return userDocument{
		Email:       strings.TrimSpace(profile.Email),
		DisplayName: profile.DisplayName,
		Phone:       profile.Phone,
		Address:     profile.Address,
		Coordinate:  newCoordinateDocument(profile.Coordinate),
		Language:    profile.Language,
		Roles:       profile.Roles,
		CreatedAt:   profile.CreatedAt.UTC(),
		UpdatedAt:   profile.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.UserProfile {
	return domain.UserProfile{
		ID:          id,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		Phone:       d.Phone,
		Address:     d.Address,
		Coordinate:  d.Coordinate.toDomain(),
		Language:    d.Language,
		Roles:       d.Roles,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
