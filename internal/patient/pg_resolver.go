package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgResolver resolves patients against the patients table, creating one per email.
type PgResolver struct {
	db querier
}

func NewPgResolver(db querier) *PgResolver {
	return &PgResolver{db: db}
}

func (r *PgResolver) Resolve(ctx context.Context, ref Ref) (uuid.UUID, error) {
	if ref.ID != uuid.Nil {
		var id uuid.UUID
		err := r.db.QueryRow(ctx, `SELECT id FROM patients WHERE id = $1`, ref.ID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return uuid.Nil, ErrPatientNotFound
			}
			return uuid.Nil, fmt.Errorf("load patient: %w", err)
		}
		return id, nil
	}

	if ref.Contact == nil {
		return uuid.Nil, fmt.Errorf("%w: patient id or contact is required", ErrInvalidContact)
	}
	c, err := ref.Contact.normalized()
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = r.db.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), now(), now())
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
		    phone = COALESCE(EXCLUDED.phone, patients.phone),
		    updated_at = now()
		RETURNING id
	`, uuid.New(), c.Name, c.Email, c.Phone).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert patient: %w", err)
	}
	return id, nil
}

func (r *PgResolver) Contact(ctx context.Context, id uuid.UUID) (Contact, error) {
	var c Contact
	var email, phone *string
	err := r.db.QueryRow(ctx, `
		SELECT name, email, phone
		FROM patients
		WHERE id = $1
	`, id).Scan(&c.Name, &email, &phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrPatientNotFound
		}
		return Contact{}, fmt.Errorf("load patient contact: %w", err)
	}
	if email != nil {
		c.Email = *email
	}
	if phone != nil {
		c.Phone = *phone
	}
	return c, nil
}
