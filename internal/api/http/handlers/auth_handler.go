package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/contacts-service/internal/api/dto"
	"github.com/spec-kit/contacts-service/internal/auth"
	"github.com/spec-kit/contacts-service/internal/service"
	apperrors "github.com/spec-kit/contacts-service/pkg/util/errorutil"
)

// AuthHandler exposes the authentication endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// collapseTokenError maps the internal token taxonomy onto the uniform
// client-facing response. Detail stays server side; a dependency timeout
// fails closed and reads the same as a bad token.
func collapseTokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrUnavailable),
		errors.Is(err, auth.ErrMalformed),
		errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, auth.ErrExpired),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrRevoked),
		errors.Is(err, auth.ErrReuseDetected),
		errors.Is(err, auth.ErrAlreadyUsedOrExpired):
		return apperrors.NewUnauthenticated("invalid token")
	default:
		return err
	}
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, err := h.auth.Signup(c.UserContext(), req.Username, req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"user":    dto.NewUserResponse(user),
			"message": "account created, check your email",
		},
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, pair, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(user),
			"auth": dto.NewTokenPairResponse(pair),
		},
	})
}

// Refresh handles POST /api/auth/refresh_token.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RefreshToken == "" {
		return apperrors.NewValidationError("refresh_token required", nil)
	}

	pair, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return collapseTokenError(err)
	}

	return c.JSON(fiber.Map{"data": dto.NewTokenPairResponse(pair)})
}

// Logout handles POST /api/auth/logout. The route sits behind the gate so
// the access token is known valid and can be block-listed.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req dto.LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.RefreshToken == "" {
		return apperrors.NewValidationError("refresh_token required", nil)
	}

	principal, _ := auth.PrincipalFromContext(c)
	var claims *auth.Claims
	if principal != nil {
		claims = principal.Claims
	}
	if err := h.auth.Logout(c.UserContext(), req.RefreshToken, claims); err != nil {
		return collapseTokenError(err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"message": "logged out"}})
}

// ConfirmEmail handles GET /api/auth/confirmed_email/:token.
func (h *AuthHandler) ConfirmEmail(c *fiber.Ctx) error {
	token := c.Params("token")
	message, err := h.auth.ConfirmEmail(c.UserContext(), token)
	if err != nil {
		return collapseTokenError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": message}})
}

// ResendConfirmEmail handles POST /api/auth/resend_confirm_email.
func (h *AuthHandler) ResendConfirmEmail(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" {
		return apperrors.NewValidationError("email required", nil)
	}

	if err := h.auth.ResendConfirmEmail(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"message": "if the account exists, a confirmation email has been sent",
	}})
}

// RequestPasswordReset handles POST /api/auth/request_reset_password.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" {
		return apperrors.NewValidationError("email required", nil)
	}

	if err := h.auth.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"message": "if the account exists, a reset email has been sent",
	}})
}

// ResetPassword handles POST /api/auth/reset_password/:token.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.NewPassword == "" {
		return apperrors.NewValidationError("new_password required", nil)
	}

	if err := h.auth.ResetPassword(c.UserContext(), c.Params("token"), req.NewPassword); err != nil {
		return collapseTokenError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "password reset successful"}})
}

// ChangePassword handles POST /api/auth/password/change (authenticated).
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}

	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("current_password and new_password required", nil)
	}

	if err := h.auth.ChangePassword(c.UserContext(), principal.Identity.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "password changed"}})
}
