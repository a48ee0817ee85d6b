package domain

import "time"

// TokenType differentiates the four credential kinds the service issues.
// The type is fixed at issuance and checked against the operation that
// presents the token.
type TokenType string

const (
	TokenTypeAccess        TokenType = "access"
	TokenTypeRefresh       TokenType = "refresh"
	TokenTypeEmailVerify   TokenType = "email_verify"
	TokenTypePasswordReset TokenType = "password_reset"
)

// SingleUse reports whether tokens of this type are consumed on first use.
func (t TokenType) SingleUse() bool {
	return t == TokenTypeEmailVerify || t == TokenTypePasswordReset
}

// TokenPair bundles the access/refresh credentials returned by login and
// refresh rotation.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
