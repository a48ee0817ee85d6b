package dto

import (
	"time"

	"github.com/spec-kit/contacts-service/internal/domain"
)

const birthdayLayout = "2006-01-02"

// ContactRequest payload for create/update.
type ContactRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Birthday  string `json:"birthday,omitempty"`
	Note      string `json:"note,omitempty"`
}

// ParseBirthday converts the optional YYYY-MM-DD field.
func (r ContactRequest) ParseBirthday() (*time.Time, error) {
	if r.Birthday == "" {
		return nil, nil
	}
	parsed, err := time.Parse(birthdayLayout, r.Birthday)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// ContactResponse is the public view of a contact.
type ContactResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Birthday  string    `json:"birthday,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewContactResponse converts a domain contact.
func NewContactResponse(contact *domain.Contact) ContactResponse {
	resp := ContactResponse{
		ID:        contact.ID,
		OwnerID:   contact.OwnerID,
		FirstName: contact.FirstName,
		LastName:  contact.LastName,
		Email:     contact.Email,
		Phone:     contact.Phone,
		Note:      contact.Note,
		CreatedAt: contact.CreatedAt,
		UpdatedAt: contact.UpdatedAt,
	}
	if contact.Birthday != nil {
		resp.Birthday = contact.Birthday.Format(birthdayLayout)
	}
	return resp
}

// NewContactResponses converts a slice of domain contacts.
func NewContactResponses(contacts []domain.Contact) []ContactResponse {
	out := make([]ContactResponse, 0, len(contacts))
	for i := range contacts {
		out = append(out, NewContactResponse(&contacts[i]))
	}
	return out
}
