package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/contacts-service/internal/domain"
)

// Claims is the signed payload carried by every token the service issues.
// The token type travels in "typ" so a refresh token can never be presented
// where an access token is expected.
type Claims struct {
	TokenType domain.TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the subject the token was issued to.
func (c *Claims) UserID() string {
	return c.RegisteredClaims.Subject
}

// Nonce returns the per-issuance identifier used as the cache key for
// allow-listing and revocation.
func (c *Claims) Nonce() string {
	return c.RegisteredClaims.ID
}

// Remaining reports how long the token stays valid from now.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

// TokenCodec signs and verifies tokens with a process-wide secret fixed at
// startup.
type TokenCodec struct {
	secret []byte
	skew   time.Duration
	now    func() time.Time
}

// NewTokenCodec builds a codec. Skew is the verifier-side clock tolerance
// applied to expiry checks; values above 30s are clamped.
func NewTokenCodec(secret string, skew time.Duration) *TokenCodec {
	const maxSkew = 30 * time.Second
	if skew < 0 || skew > maxSkew {
		skew = maxSkew
	}
	return &TokenCodec{secret: []byte(secret), skew: skew, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (tc *TokenCodec) SetClock(now func() time.Time) {
	tc.now = now
}

// Encode mints a signed token for the subject with a fresh nonce.
func (tc *TokenCodec) Encode(userID string, typ domain.TokenType, ttl time.Duration) (string, *Claims, error) {
	now := tc.now()
	claims := &Claims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Decode verifies the signature and expiry and returns the claims.
// Signature verification happens before any claim is inspected; claim
// contents of an unverified token are never surfaced.
func (tc *TokenCodec) Decode(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSignature
		}
		return tc.secret, nil
	}, jwt.WithLeeway(tc.skew), jwt.WithTimeFunc(func() time.Time { return tc.now() }))
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.UserID() == "" || claims.Nonce() == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// DecodeExpecting decodes and additionally enforces the token type.
func (tc *TokenCodec) DecodeExpecting(tokenStr string, typ domain.TokenType) (*Claims, error) {
	claims, err := tc.Decode(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != typ {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrMalformed
	}
}
