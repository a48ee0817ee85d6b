package domain

import "time"

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the domain model for account holders who own contacts.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Confirmed    bool
	Status       UserStatus
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the read-only projection of a user that authorization
// decisions operate on.
type Identity struct {
	UserID    string
	Role      Role
	Confirmed bool
	Active    bool
}

// IdentityOf projects a user into its authorization view.
func IdentityOf(u *User) Identity {
	return Identity{
		UserID:    u.ID,
		Role:      u.Role,
		Confirmed: u.Confirmed,
		Active:    u.Status == UserStatusActive,
	}
}
