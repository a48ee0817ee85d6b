package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/contacts-service/internal/api/http/handlers"
	"github.com/spec-kit/contacts-service/internal/auth"
	"github.com/spec-kit/contacts-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Auth     *handlers.AuthHandler
	Users    *handlers.UsersHandler
	Contacts *handlers.ContactsHandler
	Gate     *auth.Gate
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/api/health/live", cfg.Health.Live)
	app.Get("/api/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/api/auth")
	authGroup.Post("/signup", cfg.Auth.Signup)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh_token", cfg.Auth.Refresh)
	authGroup.Get("/confirmed_email/:token", cfg.Auth.ConfirmEmail)
	authGroup.Post("/resend_confirm_email", cfg.Auth.ResendConfirmEmail)
	authGroup.Post("/request_reset_password", cfg.Auth.RequestPasswordReset)
	authGroup.Post("/reset_password/:token", cfg.Auth.ResetPassword)

	authProtected := authGroup.Group("", cfg.Gate.Handle)
	authProtected.Post("/logout", cfg.Auth.Logout)
	authProtected.Post("/password/change", cfg.Auth.ChangePassword)

	users := app.Group("/api/users", cfg.Gate.Handle)
	users.Get("/me", cfg.Users.Me)
	users.Patch("/me", cfg.Users.UpdateProfile)
	users.Get("/", cfg.Users.List)
	users.Put("/:id/role", auth.RequireRole(domain.RoleAdmin), cfg.Users.ChangeRole)

	contacts := app.Group("/api/contacts", cfg.Gate.Handle)
	contacts.Post("/", cfg.Contacts.Create)
	contacts.Get("/", cfg.Contacts.List)
	contacts.Get("/search", cfg.Contacts.Search)
	contacts.Get("/upcoming-birthdays", cfg.Contacts.UpcomingBirthdays)
	contacts.Get("/:id", cfg.Contacts.Get)
	contacts.Put("/:id", cfg.Contacts.Update)
	contacts.Delete("/:id", cfg.Contacts.Delete)
}
