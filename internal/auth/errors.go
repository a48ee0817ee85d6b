package auth

import "errors"

// Sentinel errors for the token core. Handlers collapse everything except
// ErrForbidden into a generic unauthenticated response so callers cannot
// probe which check failed; the distinctions exist for logging and for
// flows that must react (reuse detection, fail-closed timeouts).
var (
	ErrMalformed            = errors.New("auth: malformed token")
	ErrInvalidSignature     = errors.New("auth: invalid token signature")
	ErrExpired              = errors.New("auth: token expired")
	ErrWrongTokenType       = errors.New("auth: wrong token type")
	ErrRevoked              = errors.New("auth: token revoked")
	ErrReuseDetected        = errors.New("auth: refresh token reuse detected")
	ErrAlreadyUsedOrExpired = errors.New("auth: token already used or expired")
	ErrForbidden            = errors.New("auth: forbidden")
	ErrUnavailable          = errors.New("auth: dependency unavailable")
)
