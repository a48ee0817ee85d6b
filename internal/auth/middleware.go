package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/contacts-service/internal/domain"
	"github.com/spec-kit/contacts-service/internal/repository"
	apperrors "github.com/spec-kit/contacts-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller attached to the request.
type Principal struct {
	Identity domain.Identity
	Claims   *Claims
}

// Gate validates bearer tokens on protected routes and attaches the
// resolved principal to the request context.
type Gate struct {
	lifecycle *Lifecycle
	users     repository.UserRepository
	logger    *zap.Logger
}

// NewGate constructs the request gate.
func NewGate(lifecycle *Lifecycle, users repository.UserRepository, logger *zap.Logger) *Gate {
	return &Gate{lifecycle: lifecycle, users: users, logger: logger}
}

// Handle enforces authentication. Every validation failure collapses into
// the same unauthenticated response; the distinguishing detail stays in
// the logs so clients cannot use the gate as a forgery oracle.
func (g *Gate) Handle(c *fiber.Ctx) error {
	token, ok := bearerToken(c)
	if !ok {
		return apperrors.NewUnauthenticated("missing bearer token")
	}

	claims, err := g.lifecycle.ValidateAccess(c.UserContext(), token)
	if err != nil {
		g.logger.Info("access token rejected",
			zap.String("path", c.Path()),
			zap.NamedError("reason", err))
		// Every failure reads the same, including an unreachable cache:
		// fail closed, and never hand a caller a distinct signal.
		return apperrors.NewUnauthenticated("invalid token")
	}

	user, err := g.users.GetByID(c.UserContext(), claims.UserID())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthenticated("invalid token")
		}
		return apperrors.MapError(err)
	}
	if user.Status != domain.UserStatusActive {
		return apperrors.NewUnauthenticated("invalid token")
	}

	c.Locals(principalKey, &Principal{Identity: domain.IdentityOf(user), Claims: claims})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// RequireRole restricts a route to the given roles. Authentication must
// already have happened via Handle.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Identity.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
