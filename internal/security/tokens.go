package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, carries a wrong
	// signature, or was signed for a different kind.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's signature is valid but its
	// expiry has passed. Kept distinct so clients can decide between
	// refreshing and re-authenticating.
	ErrTokenExpired = errors.New("token expired")
)

// TokenKind selects the signing secret and lifetime for a token.
type TokenKind int

const (
	// TokenAccess is the short-lived bearer token carried in the
	// Authorization header.
	TokenAccess TokenKind = iota
	// TokenRefresh is the long-lived token carried in the refreshToken
	// cookie and persisted per user.
	TokenRefresh
)

// Claims holds the subject and expiry extracted from a token without
// signature verification. See TokenCodec.DecodeUnsafe.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// TokenCodec signs and verifies HS256 access and refresh JWTs. Access and
// refresh tokens use distinct secrets so possession of one kind cannot be
// used to forge the other.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenCodec returns a TokenCodec signing with the given per-kind secrets.
// The secrets must be non-equal; issuer is set as the iss claim.
func NewTokenCodec(accessSecret, refreshSecret, issuer string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// Sign issues a token of the given kind for subject (the user ID). The expiry
// is now plus the per-kind configured lifetime. Every token carries a random
// jti, so two signs for the same subject never produce the same string even
// within the one-second resolution of iat/exp.
func (c *TokenCodec) Sign(kind TokenKind, subject string) (string, error) {
	secret, ttl, err := c.kindParams(kind)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   subject,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}

// Verify parses and validates a token of the given kind (signature, exp, iss)
// and returns its subject. Returns ErrTokenExpired when the only problem is
// expiry, ErrInvalidToken otherwise. Verify has no side effects.
func (c *TokenCodec) Verify(kind TokenKind, tokenString string) (string, error) {
	secret, _, err := c.kindParams(kind)
	if err != nil {
		return "", err
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// DecodeUnsafe extracts subject and expiry without verifying the signature.
// It must only be called on tokens the caller verified earlier in the same
// request, e.g. to compute the remaining lifetime of a refresh token that is
// being blacklisted during rotation or logout.
func (c *TokenCodec) DecodeUnsafe(tokenString string) (Claims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &jwt.RegisteredClaims{})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	out := Claims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (c *TokenCodec) kindParams(kind TokenKind) ([]byte, time.Duration, error) {
	switch kind {
	case TokenAccess:
		return c.accessSecret, c.accessTTL, nil
	case TokenRefresh:
		return c.refreshSecret, c.refreshTTL, nil
	default:
		return nil, 0, ErrInvalidToken
	}
}
