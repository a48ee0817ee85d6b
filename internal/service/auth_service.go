package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/contacts-service/internal/auth"
	"github.com/spec-kit/contacts-service/internal/config"
	"github.com/spec-kit/contacts-service/internal/domain"
	"github.com/spec-kit/contacts-service/internal/events"
	apperrors "github.com/spec-kit/contacts-service/pkg/util/errorutil"
)

// AuthService coordinates signup, login, refresh and the single-use token
// flows on top of the token lifecycle manager.
type AuthService struct {
	users      UserRepositoryPort
	lifecycle  *auth.Lifecycle
	dispatcher events.Dispatcher
	bcryptCost int
	baseURL    string
}

// UserRepositoryPort is the slice of the credential store these flows use.
type UserRepositoryPort interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	MarkEmailConfirmed(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// NewAuthService builds the service.
func NewAuthService(cfg *config.Config, users UserRepositoryPort, lifecycle *auth.Lifecycle, dispatcher events.Dispatcher) *AuthService {
	return &AuthService{
		users:      users,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		bcryptCost: cfg.Auth.BcryptCost,
		baseURL:    cfg.App.BaseURL,
	}
}

// Lifecycle exposes the token manager for middleware wiring.
func (s *AuthService) Lifecycle() *auth.Lifecycle {
	return s.lifecycle
}

// Signup registers a new account and queues a verification email. The
// account stays unconfirmed until the email-verify token is consumed.
func (s *AuthService) Signup(ctx context.Context, username, email, password string) (*domain.User, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("account already exists", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventUserSignedUp, user.ID, nil)
	if err := s.sendConfirmLink(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates by email and password and issues an access/refresh
// pair. Lookup and password failures share one message so accounts cannot
// be enumerated.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, *domain.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewUnauthenticated("invalid credentials")
		}
		return nil, nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, nil, apperrors.NewUnauthenticated("invalid credentials")
	}
	if !user.Confirmed {
		return nil, nil, apperrors.NewForbidden("email not confirmed")
	}
	if user.Status != domain.UserStatusActive {
		return nil, nil, apperrors.NewForbidden("account suspended")
	}

	pair, err := s.lifecycle.IssueAccessRefreshPair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates the presented refresh token into a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	return s.lifecycle.RotateRefresh(ctx, refreshToken)
}

// Logout kills the presented session: the refresh nonce leaves the
// allow-list and the access token is block-listed for its remaining
// lifetime. Other devices stay logged in.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, access *auth.Claims) error {
	if err := s.lifecycle.Logout(ctx, refreshToken); err != nil {
		return err
	}
	if access != nil {
		return s.lifecycle.BlockAccess(ctx, access)
	}
	return nil
}

// ConfirmEmail consumes an email-verify token and marks the account
// confirmed. Confirming an already-confirmed account succeeds quietly.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (string, error) {
	userID, err := s.lifecycle.ConsumeSingleUse(ctx, token, domain.TokenTypeEmailVerify)
	if err != nil {
		return "", err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewUnauthenticated("invalid token")
		}
		return "", err
	}
	if user.Confirmed {
		return "email already confirmed", nil
	}
	if err := s.users.MarkEmailConfirmed(ctx, user.ID); err != nil {
		return "", err
	}
	s.publish(ctx, events.EventEmailConfirmed, user.ID, nil)
	return "email confirmed", nil
}

// ResendConfirmEmail re-issues a verification token. Unknown and
// already-confirmed addresses get the same answer as everyone else.
func (s *AuthService) ResendConfirmEmail(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if user.Confirmed {
		return nil
	}
	return s.sendConfirmLink(ctx, user)
}

// RequestPasswordReset issues a reset token for the account, silently
// succeeding for unknown addresses.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	token, _, err := s.lifecycle.IssueSingleUse(ctx, user.ID, domain.TokenTypePasswordReset)
	if err != nil {
		return err
	}
	s.publish(ctx, events.EventPasswordResetRequested, user.ID, events.MailRequestPayload{
		Email:    user.Email,
		Username: user.Username,
		Link:     fmt.Sprintf("%s/api/auth/reset_password/%s", s.baseURL, token),
		Template: "reset_password",
	})
	return nil
}

// ResetPassword consumes a reset token, stores the new hash and revokes
// every outstanding session of the account.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := s.lifecycle.ConsumeSingleUse(ctx, token, domain.TokenTypePasswordReset)
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.lifecycle.RevokeAll(ctx, userID); err != nil {
		return err
	}
	s.publish(ctx, events.EventPasswordReset, userID, nil)
	return nil
}

// ChangePassword verifies the current password before storing a new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthenticated("invalid credentials")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePasswordHash(ctx, userID, hash)
}

func (s *AuthService) sendConfirmLink(ctx context.Context, user *domain.User) error {
	token, _, err := s.lifecycle.IssueSingleUse(ctx, user.ID, domain.TokenTypeEmailVerify)
	if err != nil {
		return err
	}
	s.publish(ctx, events.EventEmailConfirmRequested, user.ID, events.MailRequestPayload{
		Email:    user.Email,
		Username: user.Username,
		Link:     fmt.Sprintf("%s/api/auth/confirmed_email/%s", s.baseURL, token),
		Template: "email_confirm",
	})
	return nil
}

func (s *AuthService) publish(ctx context.Context, typ events.EventType, userID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		UserID:    userID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
