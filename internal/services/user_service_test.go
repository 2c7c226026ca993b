package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/roastline/api/internal/domain"
)

func newTestUserService(t *testing.T, users *stubUserRepo) UserService {
	t.Helper()
	svc, err := NewUserService(UserServiceDeps{
		Users: users,
		Clock: func() time.Time { return time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing service: %v", err)
	}
	return svc
}

func TestUserServiceGetProfile(t *testing.T) {
	users := &stubUserRepo{
		findFn: func(_ context.Context, userID string) (domain.UserProfile, error) {
			if userID != "user-1" {
				return domain.UserProfile{}, repoError{notFound: true}
			}
			return domain.UserProfile{ID: "user-1", DisplayName: "Raka"}, nil
		},
	}

	svc := newTestUserService(t, users)

	profile, err := svc.GetProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.DisplayName != "Raka" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	if _, err := svc.GetProfile(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.GetProfile(context.Background(), "  "); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected ErrUserInvalidInput, got %v", err)
	}
}

func TestUserServiceUpdateProfilePatchesFields(t *testing.T) {
	var saved domain.UserProfile
	users := &stubUserRepo{
		findFn: func(context.Context, string) (domain.UserProfile, error) {
			return domain.UserProfile{
				ID:          "user-1",
				DisplayName: "Raka",
				Address:     "Jl. Lama No.2",
				Language:    "id",
			}, nil
		},
		updateFn: func(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
			saved = profile
			return profile, nil
		},
	}

	svc := newTestUserService(t, users)

	address := "Jl. Asia Afrika No.8, Bandung"
	coordinate := "-6.921, 107.607"
	language := "en_US"
	profile, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID:     "user-1",
		Address:    &address,
		Coordinate: &coordinate,
		Language:   &language,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if profile.Address != address {
		t.Fatalf("expected address updated, got %q", profile.Address)
	}
	if profile.Coordinate == nil || profile.Coordinate.Lat != -6.921 || profile.Coordinate.Lng != 107.607 {
		t.Fatalf("expected coordinate parsed, got %+v", profile.Coordinate)
	}
	if profile.Language != "en-US" {
		t.Fatalf("expected canonical language tag, got %q", profile.Language)
	}
	if profile.DisplayName != "Raka" {
		t.Fatalf("untouched fields must survive, got %q", profile.DisplayName)
	}
	if saved.UpdatedAt.IsZero() {
		t.Fatalf("expected update timestamp stamped")
	}
}

func TestUserServiceUpdateProfileClearsCoordinate(t *testing.T) {
	users := &stubUserRepo{
		findFn: func(context.Context, string) (domain.UserProfile, error) {
			return domain.UserProfile{
				ID:         "user-1",
				Coordinate: &domain.Coordinate{Lat: -6.9, Lng: 107.6},
			}, nil
		},
	}

	svc := newTestUserService(t, users)

	empty := ""
	profile, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID:     "user-1",
		Coordinate: &empty,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Coordinate != nil {
		t.Fatalf("expected coordinate cleared, got %+v", profile.Coordinate)
	}
}

func TestUserServiceUpdateProfileValidation(t *testing.T) {
	users := &stubUserRepo{
		findFn: func(context.Context, string) (domain.UserProfile, error) {
			return domain.UserProfile{ID: "user-1"}, nil
		},
	}

	svc := newTestUserService(t, users)
	ctx := context.Background()

	shortName := "x"
	if _, err := svc.UpdateProfile(ctx, UpdateProfileCommand{UserID: "user-1", DisplayName: &shortName}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected error for short display name, got %v", err)
	}

	badCoordinate := "somewhere in Bandung"
	if _, err := svc.UpdateProfile(ctx, UpdateProfileCommand{UserID: "user-1", Coordinate: &badCoordinate}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected error for unparseable coordinate, got %v", err)
	}

	badLanguage := "not a tag!"
	if _, err := svc.UpdateProfile(ctx, UpdateProfileCommand{UserID: "user-1", Language: &badLanguage}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected error for invalid language tag, got %v", err)
	}
}

func TestCanonicaliseLanguageTag(t *testing.T) {
	tag, err := canonicaliseLanguageTag("id_ID")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tag != "id-ID" {
		t.Fatalf("expected id-ID, got %q", tag)
	}

	tag, err = canonicaliseLanguageTag("   ")
	if err != nil || tag != "" {
		t.Fatalf("blank tag must clear the field, got %q (%v)", tag, err)
	}
}
