package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims are the bearer token claims issued by the identity provider
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// RevocationChecker reports the instant before which an account's tokens are void
type RevocationChecker interface {
	RevokedBefore(ctx context.Context, accountID string) (time.Time, bool, error)
}

// Verifier validates HS256 bearer tokens and turns them into callers
type Verifier struct {
	secret  []byte
	issuer  string
	revoked RevocationChecker
}

// NewVerifier creates a verifier. issuer may be empty to accept any issuer; revoked may be
// nil to skip revocation checks.
func NewVerifier(secret, issuer string, revoked RevocationChecker) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, revoked: revoked}
}

// Verify parses the token and resolves the caller it identifies
func (v *Verifier) Verify(ctx context.Context, raw string) (models.Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return models.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return models.Caller{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return models.Caller{}, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}

	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return models.Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	if v.revoked != nil {
		before, ok, err := v.revoked.RevokedBefore(ctx, claims.Subject)
		if err != nil {
			return models.Caller{}, fmt.Errorf("failed to check revocation: %w", err)
		}
		// iat only has whole seconds, so a token minted in the revocation's second stays valid
		if ok && (claims.IssuedAt == nil || claims.IssuedAt.Before(before.Truncate(time.Second))) {
			return models.Caller{}, ErrTokenRevoked
		}
	}

	return models.Caller{AccountID: claims.Subject, Role: role}, nil
}

// Issuer mints tokens in the format Verifier accepts
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewIssuer creates an issuer
func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue signs a token for accountID with role
func (i *Issuer) Issue(accountID string, role models.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role: string(role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
