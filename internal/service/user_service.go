package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/contacts-service/internal/auth"
	"github.com/spec-kit/contacts-service/internal/domain"
	"github.com/spec-kit/contacts-service/internal/events"
	"github.com/spec-kit/contacts-service/internal/repository"
	apperrors "github.com/spec-kit/contacts-service/pkg/util/errorutil"
)

// UserService covers profile reads and administrative user management.
type UserService struct {
	users      repository.UserRepository
	resolver   *auth.Resolver
	dispatcher events.Dispatcher
}

// NewUserService builds the service.
func NewUserService(users repository.UserRepository, resolver *auth.Resolver, dispatcher events.Dispatcher) *UserService {
	return &UserService{users: users, resolver: resolver, dispatcher: dispatcher}
}

// Me returns the caller's own profile.
func (s *UserService) Me(ctx context.Context, principal *auth.Principal) (*domain.User, error) {
	return s.users.GetByID(ctx, principal.Identity.UserID)
}

// UpdateProfile changes the caller's username and avatar URL.
func (s *UserService) UpdateProfile(ctx context.Context, principal *auth.Principal, username, avatarURL string) (*domain.User, error) {
	if err := s.users.UpdateProfile(ctx, principal.Identity.UserID, username, avatarURL); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, principal.Identity.UserID)
}

// List returns user accounts for moderators and admins.
func (s *UserService) List(ctx context.Context, principal *auth.Principal, limit, offset int) ([]domain.User, error) {
	decision := s.resolver.Authorize(ctx, principal.Identity, auth.ActionUserList, "", principal.Claims.ExpiresAt.Time)
	if !decision.Allowed {
		return nil, apperrors.NewForbidden("not allowed")
	}
	return s.users.List(ctx, normalizeLimit(limit), offset)
}

// ChangeRole assigns a new role to a user. Admin only; ownership never
// unlocks it. The target's memoized decisions are busted eagerly so a
// demotion takes effect on the next request, not at memo expiry.
func (s *UserService) ChangeRole(ctx context.Context, principal *auth.Principal, targetID string, newRole domain.Role) (*domain.User, error) {
	decision := s.resolver.Authorize(ctx, principal.Identity, auth.ActionRoleChange, targetID, principal.Claims.ExpiresAt.Time)
	if !decision.Allowed {
		return nil, apperrors.NewForbidden("not allowed")
	}
	if !newRole.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(newRole)})
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", nil)
		}
		return nil, err
	}
	if target.Role == newRole {
		return target, nil
	}

	oldRole := target.Role
	if err := s.users.UpdateRole(ctx, targetID, newRole); err != nil {
		return nil, err
	}
	if err := s.resolver.BustUser(ctx, targetID); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventUserRoleChanged,
			UserID:    targetID,
			Timestamp: time.Now(),
			Payload:   events.RoleChangedPayload{OldRole: oldRole, NewRole: newRole},
		})
	}

	target.Role = newRole
	return target, nil
}
