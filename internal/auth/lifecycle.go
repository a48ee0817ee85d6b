package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/contacts-service/internal/cache"
	"github.com/spec-kit/contacts-service/internal/config"
	"github.com/spec-kit/contacts-service/internal/domain"
	"github.com/spec-kit/contacts-service/internal/events"
)

// Cache key layout. Token state is never stored per token: presence or
// absence of these keys is the state machine.
//
//	auth:refresh:{sub}:{jti}  allow-list entry for a live refresh token
//	auth:single:{typ}:{jti}   allow-list entry for a single-use token
//	auth:block:{jti}          block-list entry for a revoked access token
//	auth:revoked:{sub}        revoked-before marker (unix nanos)
const (
	refreshKeyPrefix = "auth:refresh:"
	singleKeyPrefix  = "auth:single:"
	blockKeyPrefix   = "auth:block:"
	revokedKeyPrefix = "auth:revoked:"
)

func refreshKey(userID, nonce string) string {
	return refreshKeyPrefix + userID + ":" + nonce
}

func refreshPrefix(userID string) string {
	return refreshKeyPrefix + userID + ":"
}

func singleUseKey(typ domain.TokenType, nonce string) string {
	return singleKeyPrefix + string(typ) + ":" + nonce
}

func blockKey(nonce string) string {
	return blockKeyPrefix + nonce
}

func revokedKey(userID string) string {
	return revokedKeyPrefix + userID
}

// Lifecycle orchestrates issuance, validation, rotation and revocation of
// tokens against the codec and the cache layer.
type Lifecycle struct {
	codec        *TokenCodec
	store        cache.Store
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	accessTTL    time.Duration
	refreshTTL   time.Duration
	verifyTTL    time.Duration
	resetTTL     time.Duration
	cacheTimeout time.Duration
	now          func() time.Time
}

// NewLifecycle builds the manager.
func NewLifecycle(cfg config.AuthConfig, store cache.Store, dispatcher events.Dispatcher, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		codec:        NewTokenCodec(cfg.JWTSecret, cfg.ClockSkew()),
		store:        store,
		dispatcher:   dispatcher,
		logger:       logger,
		accessTTL:    cfg.AccessTTL(),
		refreshTTL:   cfg.RefreshTTL(),
		verifyTTL:    cfg.EmailVerifyTTL(),
		resetTTL:     cfg.PasswordResetTTL(),
		cacheTimeout: cfg.CacheTimeout(),
		now:          time.Now,
	}
}

// Codec exposes the underlying token codec.
func (l *Lifecycle) Codec() *TokenCodec {
	return l.codec
}

// SetClock overrides the time source for the manager and its codec.
func (l *Lifecycle) SetClock(now func() time.Time) {
	l.now = now
	l.codec.SetClock(now)
}

// IssueAccessRefreshPair mints a short-lived access token and a long-lived
// refresh token, allow-listing the refresh nonce for the token's lifetime.
func (l *Lifecycle) IssueAccessRefreshPair(ctx context.Context, userID string) (*domain.TokenPair, error) {
	access, accessClaims, err := l.codec.Encode(userID, domain.TokenTypeAccess, l.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := l.codec.Encode(userID, domain.TokenTypeRefresh, l.refreshTTL)
	if err != nil {
		return nil, err
	}

	if err := l.setWithTimeout(ctx, refreshKey(userID, refreshClaims.Nonce()), userID, l.refreshTTL); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// ValidateAccess checks an access token: signature, expiry, type, block-list
// and the per-subject revoked-before marker. It performs no cache writes.
func (l *Lifecycle) ValidateAccess(ctx context.Context, token string) (*Claims, error) {
	claims, err := l.codec.DecodeExpecting(token, domain.TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	if _, err := l.getWithRetry(ctx, blockKey(claims.Nonce())); err == nil {
		return nil, ErrRevoked
	} else if !errors.Is(err, cache.ErrNotFound) {
		return nil, ErrUnavailable
	}

	revoked, err := l.issuedBeforeRevocation(ctx, claims)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// RotateRefresh exchanges a live refresh token for a fresh access/refresh
// pair. The old nonce is removed with a store-side compare-and-delete, so
// two concurrent rotations of the same token cannot both succeed. A nonce
// absent from the allow-list means the token was already rotated or revoked;
// presenting it signals theft, and every session of the subject is revoked.
func (l *Lifecycle) RotateRefresh(ctx context.Context, token string) (*domain.TokenPair, error) {
	claims, err := l.codec.DecodeExpecting(token, domain.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID := claims.UserID()

	revoked, err := l.issuedBeforeRevocation(ctx, claims)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}

	// Single conditional store operation; never retried, a delayed success
	// that actually landed would otherwise grant the pair twice.
	bctx, cancel := l.bound(ctx)
	removed, err := l.store.CompareAndDelete(bctx, refreshKey(userID, claims.Nonce()), userID)
	cancel()
	if err != nil {
		return nil, ErrUnavailable
	}
	if !removed {
		l.handleReuse(ctx, claims)
		return nil, ErrReuseDetected
	}

	return l.IssueAccessRefreshPair(ctx, userID)
}

// IssueSingleUse mints an email-verification or password-reset token and
// allow-lists its nonce for the token's lifetime.
func (l *Lifecycle) IssueSingleUse(ctx context.Context, userID string, typ domain.TokenType) (string, *Claims, error) {
	if !typ.SingleUse() {
		return "", nil, fmt.Errorf("auth: token type %q is not single-use", typ)
	}
	ttl := l.verifyTTL
	if typ == domain.TokenTypePasswordReset {
		ttl = l.resetTTL
	}

	token, claims, err := l.codec.Encode(userID, typ, ttl)
	if err != nil {
		return "", nil, err
	}
	if err := l.setWithTimeout(ctx, singleUseKey(typ, claims.Nonce()), userID, ttl); err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ConsumeSingleUse validates and burns a single-use token, returning the
// subject. The allow-list removal is one atomic store operation: of two
// concurrent consumers exactly one gets the subject, the other
// ErrAlreadyUsedOrExpired.
func (l *Lifecycle) ConsumeSingleUse(ctx context.Context, token string, expected domain.TokenType) (string, error) {
	if !expected.SingleUse() {
		return "", fmt.Errorf("auth: token type %q is not single-use", expected)
	}
	claims, err := l.codec.DecodeExpecting(token, expected)
	if err != nil {
		return "", err
	}

	// Single-use keys carry no subject, so the revoke-all sweep cannot
	// reach them; the marker check covers them instead.
	revoked, err := l.issuedBeforeRevocation(ctx, claims)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", ErrRevoked
	}

	bctx, cancel := l.bound(ctx)
	removed, err := l.store.DeleteIfPresent(bctx, singleUseKey(expected, claims.Nonce()))
	cancel()
	if err != nil {
		// Never retried: the delete may have landed, and a retry would
		// report the token as spent when this caller actually consumed it.
		return "", ErrUnavailable
	}
	if !removed {
		return "", ErrAlreadyUsedOrExpired
	}
	return claims.UserID(), nil
}

// RevokeAll invalidates every outstanding token of the subject that was
// issued before now: refresh tokens, access tokens and single-use tokens.
// Allow-list entries are removed best effort; the revoked-before marker
// catches any entry the scan missed or the cache already evicted.
func (l *Lifecycle) RevokeAll(ctx context.Context, userID string) error {
	// The marker is truncated to whole seconds because iat is serialized at
	// second precision; otherwise a token issued later in the same second
	// would read as predating the revocation.
	marker := strconv.FormatInt(l.now().Truncate(time.Second).UnixNano(), 10)
	if err := l.setWithTimeout(ctx, revokedKey(userID), marker, l.refreshTTL); err != nil {
		return err
	}

	bctx, cancel := l.bound(ctx)
	_, sweepErr := l.store.DeleteByPrefix(bctx, refreshPrefix(userID))
	cancel()
	if sweepErr != nil {
		l.logger.Warn("revoke-all allow-list sweep incomplete",
			zap.String("user_id", userID), zap.Error(sweepErr))
	}

	l.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTokenRevokedAll,
		UserID:    userID,
		Timestamp: l.now(),
	})
	return nil
}

// Logout removes the presented refresh token's allow-list entry. Other
// sessions of the same user stay valid.
func (l *Lifecycle) Logout(ctx context.Context, refreshToken string) error {
	claims, err := l.codec.DecodeExpecting(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return err
	}
	bctx, cancel := l.bound(ctx)
	_, err = l.store.DeleteIfPresent(bctx, refreshKey(claims.UserID(), claims.Nonce()))
	cancel()
	if err != nil {
		return ErrUnavailable
	}
	return nil
}

// BlockAccess places a validated access token on the block-list for the
// remainder of its lifetime, so logout kills the session immediately
// instead of waiting for expiry.
func (l *Lifecycle) BlockAccess(ctx context.Context, claims *Claims) error {
	remaining := claims.Remaining(l.now())
	if remaining <= 0 {
		return nil
	}
	return l.setWithTimeout(ctx, blockKey(claims.Nonce()), claims.UserID(), remaining)
}

func (l *Lifecycle) handleReuse(ctx context.Context, claims *Claims) {
	userID := claims.UserID()
	l.logger.Warn("refresh token reuse detected",
		zap.String("user_id", userID),
		zap.String("nonce", claims.Nonce()))

	if err := l.RevokeAll(ctx, userID); err != nil {
		l.logger.Error("revoke-all after reuse failed", zap.String("user_id", userID), zap.Error(err))
	}
	l.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTokenReuseDetected,
		UserID:    userID,
		Timestamp: l.now(),
		Payload: events.TokenReusePayload{
			Nonce:     claims.Nonce(),
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		},
	})
}

// issuedBeforeRevocation reports whether the token predates a revoke-all
// marker for its subject.
func (l *Lifecycle) issuedBeforeRevocation(ctx context.Context, claims *Claims) (bool, error) {
	val, err := l.getWithRetry(ctx, revokedKey(claims.UserID()))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return false, nil
		}
		return false, ErrUnavailable
	}
	marker, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return true, nil
	}
	return claims.IssuedAt.Time.UnixNano() < marker, nil
}

// getWithRetry reads a key, retrying once on a transient timeout. Reads
// are idempotent so a single retry is safe; anything else fails closed.
func (l *Lifecycle) getWithRetry(ctx context.Context, key string) (string, error) {
	val, err := l.getOnce(ctx, key)
	if err != nil && errors.Is(err, cache.ErrUnavailable) && ctx.Err() == nil {
		val, err = l.getOnce(ctx, key)
	}
	return val, err
}

func (l *Lifecycle) getOnce(ctx context.Context, key string) (string, error) {
	bctx, cancel := l.bound(ctx)
	defer cancel()
	return l.store.Get(bctx, key)
}

func (l *Lifecycle) setWithTimeout(ctx context.Context, key, value string, ttl time.Duration) error {
	bctx, cancel := l.bound(ctx)
	defer cancel()
	if err := l.store.SetWithTTL(bctx, key, value, ttl); err != nil {
		return ErrUnavailable
	}
	return nil
}

// bound caps a single cache round-trip without shortening the request
// deadline for subsequent work.
func (l *Lifecycle) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cacheTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.cacheTimeout)
}

func (l *Lifecycle) publish(ctx context.Context, event events.Event) {
	if l.dispatcher == nil {
		return
	}
	_ = l.dispatcher.Publish(ctx, event)
}
