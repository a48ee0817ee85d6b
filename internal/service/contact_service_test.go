package service

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/contacts-service/internal/auth"
	"github.com/spec-kit/contacts-service/internal/cache"
	"github.com/spec-kit/contacts-service/internal/domain"
	apperrors "github.com/spec-kit/contacts-service/pkg/util/errorutil"
)

// memoryContactStore keeps contacts in a map; listing order is not
// guaranteed, which the tests do not depend on.
type memoryContactStore struct {
	mu       sync.Mutex
	contacts map[string]*domain.Contact
}

func newMemoryContactStore() *memoryContactStore {
	return &memoryContactStore{contacts: map[string]*domain.Contact{}}
}

func (s *memoryContactStore) Create(_ context.Context, contact *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact.ID = uuid.NewString()
	clone := *contact
	s.contacts[contact.ID] = &clone
	return nil
}

func (s *memoryContactStore) Update(_ context.Context, contact *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[contact.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *contact
	s.contacts[contact.ID] = &clone
	return nil
}

func (s *memoryContactStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.contacts, id)
	return nil
}

func (s *memoryContactStore) GetByID(_ context.Context, id string) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact, ok := s.contacts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *contact
	return &clone, nil
}

func (s *memoryContactStore) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Contact
	for _, contact := range s.contacts {
		if contact.OwnerID == ownerID {
			out = append(out, *contact)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryContactStore) SearchByOwner(ctx context.Context, ownerID, _ string, limit, offset int) ([]domain.Contact, error) {
	return s.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *memoryContactStore) UpcomingBirthdays(ctx context.Context, ownerID string, _ int) ([]domain.Contact, error) {
	return s.ListByOwner(ctx, ownerID, 100, 0)
}

func contactPrincipal(userID string, role domain.Role) *auth.Principal {
	return principalFor(&domain.User{
		ID:        userID,
		Role:      role,
		Confirmed: true,
		Status:    domain.UserStatusActive,
	})
}

func newTestContactService(t *testing.T) (*ContactService, *memoryContactStore) {
	t.Helper()
	store := newMemoryContactStore()
	resolver := auth.NewResolver(testServiceConfig().Auth, cache.NewMemory(), zap.NewNop())
	return NewContactService(store, resolver), store
}

func requireForbidden(t *testing.T, err error) {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, http.StatusForbidden, domainErr.HTTPStatus)
}

func TestContactOwnerFullAccess(t *testing.T) {
	t.Parallel()

	svc, _ := newTestContactService(t)
	ctx := context.Background()
	owner := contactPrincipal("owner", domain.RoleUser)

	created, err := svc.Create(ctx, owner, ContactInput{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	require.Equal(t, "owner", created.OwnerID)

	got, err := svc.Get(ctx, owner, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada", got.FirstName)

	updated, err := svc.Update(ctx, owner, created.ID, ContactInput{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"})
	require.NoError(t, err)
	require.Equal(t, "Grace", updated.FirstName)

	require.NoError(t, svc.Delete(ctx, owner, created.ID))

	_, err = svc.Get(ctx, owner, created.ID)
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, http.StatusNotFound, domainErr.HTTPStatus)
}

func TestContactForeignAccessByRole(t *testing.T) {
	t.Parallel()

	svc, _ := newTestContactService(t)
	ctx := context.Background()
	owner := contactPrincipal("owner", domain.RoleUser)

	created, err := svc.Create(ctx, owner, ContactInput{FirstName: "Ada"})
	require.NoError(t, err)

	// A plain user cannot touch someone else's contact at all.
	stranger := contactPrincipal("stranger", domain.RoleUser)
	_, err = svc.Get(ctx, stranger, created.ID)
	requireForbidden(t, err)
	err = svc.Delete(ctx, stranger, created.ID)
	requireForbidden(t, err)

	// A moderator may read and update but not delete.
	moderator := contactPrincipal("mod", domain.RoleModerator)
	_, err = svc.Get(ctx, moderator, created.ID)
	require.NoError(t, err)
	_, err = svc.Update(ctx, moderator, created.ID, ContactInput{FirstName: "Edited"})
	require.NoError(t, err)
	err = svc.Delete(ctx, moderator, created.ID)
	requireForbidden(t, err)

	// An admin may do everything.
	admin := contactPrincipal("root", domain.RoleAdmin)
	require.NoError(t, svc.Delete(ctx, admin, created.ID))
}

func TestContactListIsScopedToCaller(t *testing.T) {
	t.Parallel()

	svc, _ := newTestContactService(t)
	ctx := context.Background()
	alice := contactPrincipal("alice", domain.RoleUser)
	bob := contactPrincipal("bob", domain.RoleUser)

	_, err := svc.Create(ctx, alice, ContactInput{FirstName: "A1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, alice, ContactInput{FirstName: "A2"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, ContactInput{FirstName: "B1"})
	require.NoError(t, err)

	mine, err := svc.List(ctx, alice, 50, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)

	theirs, err := svc.List(ctx, bob, 50, 0)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
}
