package domain

import "time"

// Contact is a phone-book entry owned by a single user.
type Contact struct {
	ID        string
	OwnerID   string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Birthday  *time.Time
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
