package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/contacts-service/internal/cache"
	"github.com/spec-kit/contacts-service/internal/config"
	"github.com/spec-kit/contacts-service/internal/domain"
)

// Action is the closed set of operations the resolver can gate.
type Action string

const (
	ActionContactRead   Action = "contact.read"
	ActionContactCreate Action = "contact.create"
	ActionContactUpdate Action = "contact.update"
	ActionContactDelete Action = "contact.delete"
	ActionUserRead      Action = "user.read"
	ActionUserList      Action = "user.list"
	ActionRoleChange    Action = "user.role_change"
	ActionDebugAccess   Action = "debug.access"
)

// Decision is the outcome of one authorization check. Never persisted
// beyond the short memo TTL.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

const decisionKeyPrefix = "authz:"

func decisionKey(userID string, role domain.Role, action Action, ownerID string) string {
	return decisionKeyPrefix + userID + ":" + string(role) + ":" + string(action) + ":" + ownerID
}

func decisionPrefix(userID string) string {
	return decisionKeyPrefix + userID + ":"
}

// adminOnly actions cannot be unlocked by resource ownership.
func adminOnly(action Action) bool {
	switch action {
	case ActionRoleChange, ActionDebugAccess:
		return true
	}
	return false
}

// policyAllows is the pure role policy, before the ownership override.
func policyAllows(role domain.Role, action Action) bool {
	switch role {
	case domain.RoleAdmin:
		return true
	case domain.RoleModerator:
		switch action {
		case ActionContactRead, ActionContactCreate, ActionContactUpdate,
			ActionUserRead, ActionUserList:
			return true
		}
		return false
	case domain.RoleUser:
		return action == ActionContactCreate
	}
	return false
}

// Resolver decides whether an authenticated identity may perform an action
// on a resource, memoizing decisions in the cache layer.
type Resolver struct {
	store        cache.Store
	logger       *zap.Logger
	ttlCeiling   time.Duration
	cacheTimeout time.Duration
	now          func() time.Time
}

// NewResolver builds a resolver. The decision TTL bounds how long a
// memoized decision may live regardless of token lifetime; values above a
// minute are clamped.
func NewResolver(cfg config.AuthConfig, store cache.Store, logger *zap.Logger) *Resolver {
	ttlCeiling := cfg.DecisionTTL()
	if ttlCeiling <= 0 || ttlCeiling > time.Minute {
		ttlCeiling = time.Minute
	}
	return &Resolver{
		store:        store,
		logger:       logger,
		ttlCeiling:   ttlCeiling,
		cacheTimeout: cfg.CacheTimeout(),
		now:          time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Authorize evaluates the policy for the identity. resourceOwnerID is the
// owning user of the resource acted on, empty for collection-level actions.
// tokenExpiry caps the memo so a decision never outlives the access token
// that produced it.
func (r *Resolver) Authorize(ctx context.Context, identity domain.Identity, action Action, resourceOwnerID string, tokenExpiry time.Time) Decision {
	if !identity.Active {
		return Decision{Allowed: false, Reason: "account suspended"}
	}

	key := decisionKey(identity.UserID, identity.Role, action, resourceOwnerID)
	bctx, cancel := r.bound(ctx)
	cached, err := r.store.Get(bctx, key)
	cancel()
	if err == nil {
		switch cached {
		case "allow":
			return Decision{Allowed: true, Reason: "memoized"}
		case "deny":
			return Decision{Allowed: false, Reason: "memoized"}
		}
	} else if !errors.Is(err, cache.ErrNotFound) {
		// Memo lookup failure only costs a recompute.
		r.logger.Debug("decision memo unavailable", zap.Error(err))
	}

	decision := r.evaluate(identity, action, resourceOwnerID)
	r.memoize(ctx, key, decision, tokenExpiry)
	return decision
}

func (r *Resolver) evaluate(identity domain.Identity, action Action, resourceOwnerID string) Decision {
	if adminOnly(action) {
		if identity.Role == domain.RoleAdmin {
			return Decision{Allowed: true, Reason: "admin"}
		}
		return Decision{Allowed: false, Reason: "admin only"}
	}
	if resourceOwnerID != "" && resourceOwnerID == identity.UserID {
		return Decision{Allowed: true, Reason: "resource owner"}
	}
	if policyAllows(identity.Role, action) {
		return Decision{Allowed: true, Reason: "role policy"}
	}
	return Decision{Allowed: false, Reason: "role policy"}
}

func (r *Resolver) memoize(ctx context.Context, key string, decision Decision, tokenExpiry time.Time) {
	ttl := r.ttlCeiling
	if !tokenExpiry.IsZero() {
		if remaining := tokenExpiry.Sub(r.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}
	value := "deny"
	if decision.Allowed {
		value = "allow"
	}
	bctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.store.SetWithTTL(bctx, key, value, ttl); err != nil {
		r.logger.Debug("decision memo write failed", zap.Error(err))
	}
}

// BustUser drops every memoized decision for the user. Called on role
// changes so a stale grant cannot outlive a demotion.
func (r *Resolver) BustUser(ctx context.Context, userID string) error {
	bctx, cancel := r.bound(ctx)
	defer cancel()
	_, err := r.store.DeleteByPrefix(bctx, decisionPrefix(userID))
	return err
}

// bound caps a single cache round-trip without shortening the request
// deadline for subsequent work.
func (r *Resolver) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cacheTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cacheTimeout)
}
