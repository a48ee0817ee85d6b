package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/contacts-service/internal/auth"
	"github.com/spec-kit/contacts-service/internal/domain"
	"github.com/spec-kit/contacts-service/internal/repository"
	apperrors "github.com/spec-kit/contacts-service/pkg/util/errorutil"
)

// ContactService applies the permission resolver in front of the contacts
// repository. Every per-resource operation loads the contact first so the
// resolver sees the real owner.
type ContactService struct {
	contacts repository.ContactRepository
	resolver *auth.Resolver
}

// NewContactService builds the service.
func NewContactService(contacts repository.ContactRepository, resolver *auth.Resolver) *ContactService {
	return &ContactService{contacts: contacts, resolver: resolver}
}

// ContactInput carries the mutable fields of a contact.
type ContactInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Birthday  *time.Time
	Note      string
}

func (s *ContactService) authorize(ctx context.Context, principal *auth.Principal, action auth.Action, ownerID string) error {
	decision := s.resolver.Authorize(ctx, principal.Identity, action, ownerID, principal.Claims.ExpiresAt.Time)
	if !decision.Allowed {
		return apperrors.NewForbidden("not allowed")
	}
	return nil
}

// Create adds a contact owned by the caller.
func (s *ContactService) Create(ctx context.Context, principal *auth.Principal, input ContactInput) (*domain.Contact, error) {
	if err := s.authorize(ctx, principal, auth.ActionContactCreate, principal.Identity.UserID); err != nil {
		return nil, err
	}
	contact := &domain.Contact{
		OwnerID:   principal.Identity.UserID,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
		Birthday:  input.Birthday,
		Note:      input.Note,
	}
	if err := s.contacts.Create(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// Get returns one contact if the caller may read it.
func (s *ContactService) Get(ctx context.Context, principal *auth.Principal, id string) (*domain.Contact, error) {
	contact, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, principal, auth.ActionContactRead, contact.OwnerID); err != nil {
		return nil, err
	}
	return contact, nil
}

// List returns the caller's own contacts.
func (s *ContactService) List(ctx context.Context, principal *auth.Principal, limit, offset int) ([]domain.Contact, error) {
	if err := s.authorize(ctx, principal, auth.ActionContactRead, principal.Identity.UserID); err != nil {
		return nil, err
	}
	return s.contacts.ListByOwner(ctx, principal.Identity.UserID, normalizeLimit(limit), offset)
}

// Search filters the caller's contacts by name or email fragment.
func (s *ContactService) Search(ctx context.Context, principal *auth.Principal, query string, limit, offset int) ([]domain.Contact, error) {
	if err := s.authorize(ctx, principal, auth.ActionContactRead, principal.Identity.UserID); err != nil {
		return nil, err
	}
	return s.contacts.SearchByOwner(ctx, principal.Identity.UserID, query, normalizeLimit(limit), offset)
}

// UpcomingBirthdays lists the caller's contacts with birthdays inside the
// window.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, principal *auth.Principal, days int) ([]domain.Contact, error) {
	if err := s.authorize(ctx, principal, auth.ActionContactRead, principal.Identity.UserID); err != nil {
		return nil, err
	}
	if days <= 0 || days > 366 {
		days = 7
	}
	return s.contacts.UpcomingBirthdays(ctx, principal.Identity.UserID, days)
}

// Update replaces the mutable fields of a contact.
func (s *ContactService) Update(ctx context.Context, principal *auth.Principal, id string, input ContactInput) (*domain.Contact, error) {
	contact, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, principal, auth.ActionContactUpdate, contact.OwnerID); err != nil {
		return nil, err
	}

	contact.FirstName = input.FirstName
	contact.LastName = input.LastName
	contact.Email = input.Email
	contact.Phone = input.Phone
	contact.Birthday = input.Birthday
	contact.Note = input.Note
	if err := s.contacts.Update(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// Delete removes a contact.
func (s *ContactService) Delete(ctx context.Context, principal *auth.Principal, id string) error {
	contact, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, principal, auth.ActionContactDelete, contact.OwnerID); err != nil {
		return err
	}
	return s.contacts.Delete(ctx, id)
}

func (s *ContactService) load(ctx context.Context, id string) (*domain.Contact, error) {
	contact, err := s.contacts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("contact", nil)
		}
		return nil, err
	}
	return contact, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
