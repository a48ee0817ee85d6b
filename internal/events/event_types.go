package events

import (
	"time"

	"github.com/spec-kit/contacts-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTokenReuseDetected     EventType = "token.reuse_detected"
	EventTokenRevokedAll        EventType = "token.revoked_all"
	EventUserSignedUp           EventType = "user.signed_up"
	EventUserRoleChanged        EventType = "user.role_changed"
	EventPasswordResetRequested EventType = "auth.password_reset_requested"
	EventPasswordReset          EventType = "auth.password_reset"
	EventEmailConfirmRequested  EventType = "auth.email_confirm_requested"
	EventEmailConfirmed         EventType = "auth.email_confirmed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TokenReusePayload carries details of a detected refresh token replay.
type TokenReusePayload struct {
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RoleChangedPayload records a role transition.
type RoleChangedPayload struct {
	OldRole domain.Role `json:"old_role"`
	NewRole domain.Role `json:"new_role"`
}

// MailRequestPayload asks the notification pipeline to deliver a link to
// the user out of band.
type MailRequestPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Link     string `json:"link"`
	Template string `json:"template"`
}
