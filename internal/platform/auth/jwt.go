package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the provided bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided bearer token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims carries the token payload the API cares about.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates a raw bearer token and returns the identity it encodes.
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}

// JWTVerifier validates HS256-signed bearer tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// JWTOption customises JWTVerifier behaviour.
type JWTOption func(*JWTVerifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) JWTOption {
	return func(v *JWTVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithLeeway tolerates clock skew when checking exp/nbf.
func WithLeeway(leeway time.Duration) JWTOption {
	return func(v *JWTVerifier) {
		if leeway > 0 {
			v.leeway = leeway
		}
	}
}

// NewJWTVerifier constructs a verifier for HS256 tokens signed with secret.
func NewJWTVerifier(secret string, opts ...JWTOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	v := &JWTVerifier{secret: []byte(secret)}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify parses and validates the token, returning the embedded identity.
func (v *JWTVerifier) Verify(token string) (*Identity, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: verifier not configured", ErrTokenInvalid)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	// Time claims are checked by hand below so the configured leeway applies.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	now := time.Now().UTC()
	if !claims.VerifyExpiresAt(now.Add(-v.leeway), true) {
		return nil, fmt.Errorf("%w: token is expired", ErrTokenExpired)
	}
	if !claims.VerifyNotBefore(now.Add(v.leeway), false) {
		return nil, fmt.Errorf("%w: token used before valid", ErrTokenInvalid)
	}
	if !claims.VerifyIssuedAt(now.Add(v.leeway), false) {
		return nil, fmt.Errorf("%w: token used before issued", ErrTokenInvalid)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}

	role := normaliseRole(claims.Role)
	switch role {
	case "":
		role = RoleUser
	case RoleUser, RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	return &Identity{
		UserID: subject,
		Email:  strings.TrimSpace(claims.Email),
		Role:   role,
	}, nil
}

// SignToken mints an HS256 token for the given identity, used by local tooling and tests.
func SignToken(secret string, identity Identity, issuer string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("auth: signing secret is required")
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return "", errors.New("auth: identity user id is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now = now.UTC()

	claims := Claims{
		Role:  normaliseRole(identity.Role),
		Email: strings.TrimSpace(identity.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    strings.TrimSpace(issuer),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
