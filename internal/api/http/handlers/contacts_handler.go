package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/contacts-service/internal/api/dto"
	"github.com/spec-kit/contacts-service/internal/auth"
	"github.com/spec-kit/contacts-service/internal/service"
	apperrors "github.com/spec-kit/contacts-service/pkg/util/errorutil"
)

// ContactsHandler exposes the contacts CRUD surface.
type ContactsHandler struct {
	contacts *service.ContactService
}

// NewContactsHandler constructs handler.
func NewContactsHandler(contactService *service.ContactService) *ContactsHandler {
	return &ContactsHandler{contacts: contactService}
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	return principal, nil
}

func parseContactRequest(c *fiber.Ctx) (service.ContactInput, error) {
	var req dto.ContactRequest
	if err := c.BodyParser(&req); err != nil {
		return service.ContactInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	if req.FirstName == "" || req.Phone == "" {
		return service.ContactInput{}, apperrors.NewValidationError("first_name and phone required", nil)
	}
	birthday, err := req.ParseBirthday()
	if err != nil {
		return service.ContactInput{}, apperrors.NewValidationError("birthday must be YYYY-MM-DD", nil)
	}
	return service.ContactInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Birthday:  birthday,
		Note:      req.Note,
	}, nil
}

// Create handles POST /api/contacts.
func (h *ContactsHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	input, err := parseContactRequest(c)
	if err != nil {
		return err
	}

	contact, err := h.contacts.Create(c.UserContext(), principal, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewContactResponse(contact)})
}

// List handles GET /api/contacts.
func (h *ContactsHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}

	contacts, err := h.contacts.List(c.UserContext(), principal, c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewContactResponses(contacts)})
}

// Search handles GET /api/contacts/search?q=.
func (h *ContactsHandler) Search(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	query := c.Query("q")
	if query == "" {
		return apperrors.NewValidationError("query parameter q required", nil)
	}

	contacts, err := h.contacts.Search(c.UserContext(), principal, query, c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewContactResponses(contacts)})
}

// UpcomingBirthdays handles GET /api/contacts/upcoming-birthdays.
func (h *ContactsHandler) UpcomingBirthdays(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}

	contacts, err := h.contacts.UpcomingBirthdays(c.UserContext(), principal, c.QueryInt("days", 7))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewContactResponses(contacts)})
}

// Get handles GET /api/contacts/:id.
func (h *ContactsHandler) Get(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}

	contact, err := h.contacts.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewContactResponse(contact)})
}

// Update handles PUT /api/contacts/:id.
func (h *ContactsHandler) Update(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	input, err := parseContactRequest(c)
	if err != nil {
		return err
	}

	contact, err := h.contacts.Update(c.UserContext(), principal, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewContactResponse(contact)})
}

// Delete handles DELETE /api/contacts/:id.
func (h *ContactsHandler) Delete(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}

	if err := h.contacts.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
