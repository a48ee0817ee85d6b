package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/contacts-service/internal/domain"
)

// ContactRepository manages phone-book entries. Queries are not scoped by
// owner here; authorization happens in the service layer so moderators and
// admins can act across tenants.
type ContactRepository interface {
	Create(ctx context.Context, contact *domain.Contact) error
	Update(ctx context.Context, contact *domain.Contact) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Contact, error)
	SearchByOwner(ctx context.Context, ownerID, query string, limit, offset int) ([]domain.Contact, error)
	UpcomingBirthdays(ctx context.Context, ownerID string, days int) ([]domain.Contact, error)
}

type contactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository returns a Postgres-backed implementation.
func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &contactRepository{pool: pool}
}

const contactColumns = `id, owner_id, first_name, last_name, email, phone, birthday, note, created_at, updated_at`

func scanContact(row pgx.Row) (*domain.Contact, error) {
	var contact domain.Contact
	if err := row.Scan(
		&contact.ID,
		&contact.OwnerID,
		&contact.FirstName,
		&contact.LastName,
		&contact.Email,
		&contact.Phone,
		&contact.Birthday,
		&contact.Note,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &contact, nil
}

func collectContacts(rows pgx.Rows) ([]domain.Contact, error) {
	defer rows.Close()
	var contacts []domain.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *contact)
	}
	return contacts, rows.Err()
}

func (r *contactRepository) Create(ctx context.Context, contact *domain.Contact) error {
	const query = `
        INSERT INTO contacts (owner_id, first_name, last_name, email, phone, birthday, note)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		contact.OwnerID,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.Phone,
		contact.Birthday,
		contact.Note,
	).Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt)
}

func (r *contactRepository) Update(ctx context.Context, contact *domain.Contact) error {
	const query = `
        UPDATE contacts
        SET first_name=$1, last_name=$2, email=$3, phone=$4, birthday=$5, note=$6, updated_at=NOW()
        WHERE id=$7`

	cmd, err := r.pool.Exec(ctx, query,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.Phone,
		contact.Birthday,
		contact.Note,
		contact.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *contactRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *contactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	const query = `SELECT ` + contactColumns + ` FROM contacts WHERE id=$1`
	return scanContact(r.pool.QueryRow(ctx, query, id))
}

func (r *contactRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Contact, error) {
	const query = `
        SELECT ` + contactColumns + ` FROM contacts
        WHERE owner_id=$1 ORDER BY last_name, first_name LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectContacts(rows)
}

func (r *contactRepository) SearchByOwner(ctx context.Context, ownerID, query string, limit, offset int) ([]domain.Contact, error) {
	const sql = `
        SELECT ` + contactColumns + ` FROM contacts
        WHERE owner_id=$1
          AND (first_name ILIKE '%' || $2 || '%'
            OR last_name ILIKE '%' || $2 || '%'
            OR email ILIKE '%' || $2 || '%')
        ORDER BY last_name, first_name LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, sql, ownerID, query, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectContacts(rows)
}

func (r *contactRepository) UpcomingBirthdays(ctx context.Context, ownerID string, days int) ([]domain.Contact, error) {
	// Compares month/day so birthdays wrap across year boundaries.
	const query = `
        SELECT ` + contactColumns + ` FROM contacts
        WHERE owner_id=$1
          AND birthday IS NOT NULL
          AND (
            (birthday + ((EXTRACT(YEAR FROM AGE(birthday))::int + 1) * INTERVAL '1 year'))::date
              BETWEEN CURRENT_DATE AND CURRENT_DATE + ($2 || ' days')::interval
            OR
            (birthday + (EXTRACT(YEAR FROM AGE(birthday))::int * INTERVAL '1 year'))::date
              BETWEEN CURRENT_DATE AND CURRENT_DATE + ($2 || ' days')::interval
          )
        ORDER BY EXTRACT(MONTH FROM birthday), EXTRACT(DAY FROM birthday)`

	rows, err := r.pool.Query(ctx, query, ownerID, days)
	if err != nil {
		return nil, err
	}
	return collectContacts(rows)
}
