package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/contacts-service/internal/domain"
	"github.com/spec-kit/contacts-service/internal/events"
	apperrors "github.com/spec-kit/contacts-service/pkg/util/errorutil"
)

// fakeUserRepo serves users by ID out of a map.
type fakeUserRepo struct {
	users map[string]*domain.User
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserRepo) Create(context.Context, *domain.User) error { return nil }
func (f *fakeUserRepo) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, pgx.ErrNoRows
}
func (f *fakeUserRepo) List(context.Context, int, int) ([]domain.User, error)  { return nil, nil }
func (f *fakeUserRepo) UpdateRole(context.Context, string, domain.Role) error  { return nil }
func (f *fakeUserRepo) MarkEmailConfirmed(context.Context, string) error       { return nil }
func (f *fakeUserRepo) UpdatePasswordHash(context.Context, string, string) error {
	return nil
}
func (f *fakeUserRepo) UpdateProfile(context.Context, string, string, string) error {
	return nil
}

func newGateApp(t *testing.T, gate *Gate, extra ...fiber.Handler) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var domainErr *apperrors.DomainError
			if errors.As(err, &domainErr) {
				return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"code": domainErr.Code})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"code": "INTERNAL_ERROR"})
		},
	})

	handlers := append([]fiber.Handler{gate.Handle}, extra...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewInternalError(errors.New("principal missing after gate"))
		}
		return c.JSON(fiber.Map{"user_id": principal.Identity.UserID})
	})
	app.Get("/protected", handlers...)
	return app
}

func gateRequest(t *testing.T, app *fiber.App, authorization string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestGateAcceptsValidToken(t *testing.T) {
	t.Parallel()

	lifecycle, _, _ := newTestLifecycle(t)
	repo := &fakeUserRepo{users: map[string]*domain.User{
		"u1": {ID: "u1", Role: domain.RoleUser, Confirmed: true, Status: domain.UserStatusActive},
	}}
	app := newGateApp(t, NewGate(lifecycle, repo, zap.NewNop()))

	pair, err := lifecycle.IssueAccessRefreshPair(context.Background(), "u1")
	require.NoError(t, err)

	resp := gateRequest(t, app, "Bearer "+pair.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGateRejectsUniformly(t *testing.T) {
	t.Parallel()

	lifecycle, _, _ := newTestLifecycle(t)
	repo := &fakeUserRepo{users: map[string]*domain.User{
		"u1": {ID: "u1", Role: domain.RoleUser, Confirmed: true, Status: domain.UserStatusActive},
	}}
	app := newGateApp(t, NewGate(lifecycle, repo, zap.NewNop()))

	pair, err := lifecycle.IssueAccessRefreshPair(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, lifecycle.BlockAccess(context.Background(), mustDecode(t, lifecycle, pair.AccessToken)))

	// Missing header, garbage, wrong scheme, wrong type and revoked token
	// all produce the same status so the gate leaks nothing.
	for _, authorization := range []string{
		"",
		"Bearer not.a.jwt",
		"Basic dXNlcjpwYXNz",
		"Bearer " + pair.RefreshToken,
		"Bearer " + pair.AccessToken,
	} {
		resp := gateRequest(t, app, authorization)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "authorization %q", authorization)
	}
}

func TestGateRejectsUnknownOrSuspendedUser(t *testing.T) {
	t.Parallel()

	lifecycle, _, _ := newTestLifecycle(t)
	repo := &fakeUserRepo{users: map[string]*domain.User{
		"suspended": {ID: "suspended", Role: domain.RoleUser, Confirmed: true, Status: domain.UserStatusSuspended},
	}}
	app := newGateApp(t, NewGate(lifecycle, repo, zap.NewNop()))

	ghost, err := lifecycle.IssueAccessRefreshPair(context.Background(), "ghost")
	require.NoError(t, err)
	resp := gateRequest(t, app, "Bearer "+ghost.AccessToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	suspended, err := lifecycle.IssueAccessRefreshPair(context.Background(), "suspended")
	require.NoError(t, err)
	resp = gateRequest(t, app, "Bearer "+suspended.AccessToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGateFailsClosedWhenStoreDown(t *testing.T) {
	t.Parallel()

	healthy, _, _ := newTestLifecycle(t)
	pair, err := healthy.IssueAccessRefreshPair(context.Background(), "u1")
	require.NoError(t, err)

	broken := NewLifecycle(testAuthConfig(), unavailableStore{}, events.NewInMemoryDispatcher(), zap.NewNop())
	repo := &fakeUserRepo{users: map[string]*domain.User{
		"u1": {ID: "u1", Role: domain.RoleUser, Confirmed: true, Status: domain.UserStatusActive},
	}}
	app := newGateApp(t, NewGate(broken, repo, zap.NewNop()))

	// A timed-out cache never grants access, and the response is the same
	// uniform rejection as any bad token.
	resp := gateRequest(t, app, "Bearer "+pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	lifecycle, _, _ := newTestLifecycle(t)
	repo := &fakeUserRepo{users: map[string]*domain.User{
		"admin": {ID: "admin", Role: domain.RoleAdmin, Confirmed: true, Status: domain.UserStatusActive},
		"plain": {ID: "plain", Role: domain.RoleUser, Confirmed: true, Status: domain.UserStatusActive},
	}}
	app := newGateApp(t, NewGate(lifecycle, repo, zap.NewNop()), RequireRole(domain.RoleAdmin))

	adminPair, err := lifecycle.IssueAccessRefreshPair(context.Background(), "admin")
	require.NoError(t, err)
	resp := gateRequest(t, app, "Bearer "+adminPair.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	plainPair, err := lifecycle.IssueAccessRefreshPair(context.Background(), "plain")
	require.NoError(t, err)
	resp = gateRequest(t, app, "Bearer "+plainPair.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func mustDecode(t *testing.T, lifecycle *Lifecycle, token string) *Claims {
	t.Helper()
	claims, err := lifecycle.codec.Decode(token)
	require.NoError(t, err)
	return claims
}
