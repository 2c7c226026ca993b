package auth

import (
	"errors"
	"testing"
	"time"
)

const testSigningSecret = "unit-test-signing-secret"

func TestJWTVerifier_RoundTrip(t *testing.T) {
	token, err := SignToken(testSigningSecret, Identity{
		UserID: "user-42",
		Email:  "roaster@example.com",
		Role:   "Admin",
	}, "roastline", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SignToken returned error: %v", err)
	}

	verifier, err := NewJWTVerifier(testSigningSecret, WithIssuer("roastline"))
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}

	identity, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.UserID != "user-42" {
		t.Fatalf("unexpected user id %s", identity.UserID)
	}
	if identity.Email != "roaster@example.com" {
		t.Fatalf("unexpected email %s", identity.Email)
	}
	if identity.Role != RoleAdmin {
		t.Fatalf("expected normalised admin role, got %s", identity.Role)
	}
}

func TestJWTVerifier_DefaultsMissingRoleToUser(t *testing.T) {
	token, err := SignToken(testSigningSecret, Identity{UserID: "user-7"}, "", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SignToken returned error: %v", err)
	}

	verifier, err := NewJWTVerifier(testSigningSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}

	identity, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if identity.Role != RoleUser {
		t.Fatalf("expected fallback user role, got %s", identity.Role)
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	token, err := SignToken(testSigningSecret, Identity{UserID: "user-7", Role: RoleUser}, "", time.Hour, issued)
	if err != nil {
		t.Fatalf("SignToken returned error: %v", err)
	}

	verifier, err := NewJWTVerifier(testSigningSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTVerifier_LeewayToleratesClockSkew(t *testing.T) {
	// Expired 30 seconds ago: rejected by a strict verifier, accepted with leeway.
	issued := time.Now().Add(-90 * time.Second)
	token, err := SignToken(testSigningSecret, Identity{UserID: "user-7", Role: RoleUser}, "", time.Minute, issued)
	if err != nil {
		t.Fatalf("SignToken returned error: %v", err)
	}

	strict, err := NewJWTVerifier(testSigningSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}
	if _, err := strict.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired without leeway, got %v", err)
	}

	lenient, err := NewJWTVerifier(testSigningSecret, WithLeeway(2*time.Minute))
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}
	identity, err := lenient.Verify(token)
	if err != nil {
		t.Fatalf("Verify with leeway returned error: %v", err)
	}
	if identity.UserID != "user-7" {
		t.Fatalf("unexpected user id %s", identity.UserID)
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	token, err := SignToken("other-secret", Identity{UserID: "user-7", Role: RoleUser}, "", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SignToken returned error: %v", err)
	}

	verifier, err := NewJWTVerifier(testSigningSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestJWTVerifier_IssuerMismatch(t *testing.T) {
	token, err := SignToken(testSigningSecret, Identity{UserID: "user-7", Role: RoleUser}, "someone-else", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SignToken returned error: %v", err)
	}

	verifier, err := NewJWTVerifier(testSigningSecret, WithIssuer("roastline"))
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestJWTVerifier_UnknownRole(t *testing.T) {
	token, err := SignToken(testSigningSecret, Identity{UserID: "user-7", Role: "superuser"}, "", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SignToken returned error: %v", err)
	}

	verifier, err := NewJWTVerifier(testSigningSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier returned error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for unknown role, got %v", err)
	}
}
