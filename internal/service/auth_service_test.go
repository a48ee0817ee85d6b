package service

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/contacts-service/internal/auth"
	"github.com/spec-kit/contacts-service/internal/cache"
	"github.com/spec-kit/contacts-service/internal/config"
	"github.com/spec-kit/contacts-service/internal/domain"
	"github.com/spec-kit/contacts-service/internal/events"
	apperrors "github.com/spec-kit/contacts-service/pkg/util/errorutil"
)

// memoryUserStore is the in-memory stand-in for the credential store.
type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: map[string]*domain.User{}}
}

func (s *memoryUserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = uuid.NewString()
	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *memoryUserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (s *memoryUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memoryUserStore) MarkEmailConfirmed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Confirmed = true
	return nil
}

func (s *memoryUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.PasswordHash = hash
	return nil
}

func testServiceConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{BaseURL: "http://localhost:3000"},
		Auth: config.AuthConfig{
			JWTSecret:               "test-secret",
			AccessTokenTTLMinutes:   15,
			RefreshTokenTTLDays:     7,
			EmailVerifyTTLHours:     24,
			PasswordResetTTLMinutes: 60,
			BcryptCost:              4,
		},
	}
}

// mailSink captures the links queued for outbound mail.
type mailSink struct {
	mu    sync.Mutex
	links []string
}

func (m *mailSink) subscribe(dispatcher events.Dispatcher, types ...events.EventType) {
	for _, typ := range types {
		dispatcher.Subscribe(typ, func(_ context.Context, event events.Event) error {
			payload, ok := event.Payload.(events.MailRequestPayload)
			if !ok {
				return nil
			}
			m.mu.Lock()
			m.links = append(m.links, payload.Link)
			m.mu.Unlock()
			return nil
		})
	}
}

// lastToken pulls the token path segment out of the most recent link.
func (m *mailSink) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.links, "no mail link captured")
	link := m.links[len(m.links)-1]
	idx := strings.LastIndex(link, "/")
	require.Greater(t, idx, -1)
	return link[idx+1:]
}

func newTestAuthService(t *testing.T) (*AuthService, *memoryUserStore, *mailSink) {
	t.Helper()

	store := newMemoryUserStore()
	dispatcher := events.NewInMemoryDispatcher()
	lifecycle := auth.NewLifecycle(testServiceConfig().Auth, cache.NewMemory(), dispatcher, zap.NewNop())

	sink := &mailSink{}
	sink.subscribe(dispatcher, events.EventEmailConfirmRequested, events.EventPasswordResetRequested)

	svc := NewAuthService(testServiceConfig(), store, lifecycle, dispatcher)
	return svc, store, sink
}

func signupAndConfirm(t *testing.T, svc *AuthService, sink *mailSink, email, password string) *domain.User {
	t.Helper()
	ctx := context.Background()

	user, err := svc.Signup(ctx, "tester", email, password)
	require.NoError(t, err)

	_, err = svc.ConfirmEmail(ctx, sink.lastToken(t))
	require.NoError(t, err)
	return user
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "first", "a@example.com", "pw12345678")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "second", "a@example.com", "pw12345678")
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, "CONFLICT", domainErr.Code)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	t.Parallel()

	svc, _, sink := newTestAuthService(t)
	ctx := context.Background()
	signupAndConfirm(t, svc, sink, "a@example.com", "pw12345678")

	var domainErr *apperrors.DomainError

	// Unknown account and wrong password read identically.
	_, _, err := svc.Login(ctx, "nobody@example.com", "pw12345678")
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, http.StatusUnauthorized, domainErr.HTTPStatus)
	unknownMsg := domainErr.Message

	_, _, err = svc.Login(ctx, "a@example.com", "wrong-password")
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, unknownMsg, domainErr.Message)
}

func TestLoginRequiresConfirmedEmail(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "tester", "a@example.com", "pw12345678")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "a@example.com", "pw12345678")
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, http.StatusForbidden, domainErr.HTTPStatus)
}

func TestLoginIssuesWorkingPair(t *testing.T) {
	t.Parallel()

	svc, _, sink := newTestAuthService(t)
	ctx := context.Background()
	created := signupAndConfirm(t, svc, sink, "a@example.com", "pw12345678")

	user, pair, err := svc.Login(ctx, "a@example.com", "pw12345678")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)

	claims, err := svc.Lifecycle().ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID())

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
}

func TestConfirmEmailTokenIsSingleUse(t *testing.T) {
	t.Parallel()

	svc, _, sink := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "tester", "a@example.com", "pw12345678")
	require.NoError(t, err)
	token := sink.lastToken(t)

	msg, err := svc.ConfirmEmail(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "email confirmed", msg)

	_, err = svc.ConfirmEmail(ctx, token)
	require.ErrorIs(t, err, auth.ErrAlreadyUsedOrExpired)
}

func TestResendConfirmEmailIsEnumerationSafe(t *testing.T) {
	t.Parallel()

	svc, _, sink := newTestAuthService(t)
	ctx := context.Background()
	signupAndConfirm(t, svc, sink, "a@example.com", "pw12345678")

	require.NoError(t, svc.ResendConfirmEmail(ctx, "nobody@example.com"))
	require.NoError(t, svc.ResendConfirmEmail(ctx, "a@example.com"))
}

func TestRequestPasswordResetIsEnumerationSafe(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestAuthService(t)
	require.NoError(t, svc.RequestPasswordReset(context.Background(), "nobody@example.com"))
}

func TestResetPasswordRevokesEverySession(t *testing.T) {
	t.Parallel()

	svc, _, sink := newTestAuthService(t)
	ctx := context.Background()
	signupAndConfirm(t, svc, sink, "a@example.com", "old-password")

	_, pair, err := svc.Login(ctx, "a@example.com", "old-password")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@example.com"))
	require.NoError(t, svc.ResetPassword(ctx, sink.lastToken(t), "new-password"))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRevoked)
	_, err = svc.Lifecycle().ValidateAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, auth.ErrRevoked)

	_, _, err = svc.Login(ctx, "a@example.com", "old-password")
	require.Error(t, err)
	_, _, err = svc.Login(ctx, "a@example.com", "new-password")
	require.NoError(t, err)
}

func TestResetTokenIsSingleUse(t *testing.T) {
	t.Parallel()

	svc, _, sink := newTestAuthService(t)
	ctx := context.Background()
	signupAndConfirm(t, svc, sink, "a@example.com", "old-password")

	require.NoError(t, svc.RequestPasswordReset(ctx, "a@example.com"))
	token := sink.lastToken(t)

	require.NoError(t, svc.ResetPassword(ctx, token, "new-password"))
	err := svc.ResetPassword(ctx, token, "sneaky-password")
	require.ErrorIs(t, err, auth.ErrAlreadyUsedOrExpired)
}

func TestLogoutKillsOnlyPresentedSession(t *testing.T) {
	t.Parallel()

	svc, _, sink := newTestAuthService(t)
	ctx := context.Background()
	signupAndConfirm(t, svc, sink, "a@example.com", "pw12345678")

	_, laptop, err := svc.Login(ctx, "a@example.com", "pw12345678")
	require.NoError(t, err)
	_, phone, err := svc.Login(ctx, "a@example.com", "pw12345678")
	require.NoError(t, err)

	claims, err := svc.Lifecycle().Codec().Decode(laptop.AccessToken)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, laptop.RefreshToken, claims))

	// Logged-out session: access blocked, refresh gone from the allow-list.
	_, err = svc.Lifecycle().ValidateAccess(ctx, laptop.AccessToken)
	require.ErrorIs(t, err, auth.ErrRevoked)

	// The other device keeps working.
	_, err = svc.Lifecycle().ValidateAccess(ctx, phone.AccessToken)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, phone.RefreshToken)
	require.NoError(t, err)
}

func TestChangePasswordChecksCurrent(t *testing.T) {
	t.Parallel()

	svc, _, sink := newTestAuthService(t)
	ctx := context.Background()
	user := signupAndConfirm(t, svc, sink, "a@example.com", "old-password")

	err := svc.ChangePassword(ctx, user.ID, "wrong-password", "new-password")
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, http.StatusUnauthorized, domainErr.HTTPStatus)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "old-password", "new-password"))
	_, _, err = svc.Login(ctx, "a@example.com", "new-password")
	require.NoError(t, err)
}
