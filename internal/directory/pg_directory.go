package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgDirectory reads providers and their schedule templates from Postgres.
type PgDirectory struct {
	db querier
}

func NewPgDirectory(db querier) *PgDirectory {
	return &PgDirectory{db: db}
}

func (d *PgDirectory) Lookup(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := d.db.QueryRow(ctx, `
		SELECT id, name, specialty_id, location_id, time_zone, schedule
		FROM providers
		WHERE id = $1
	`, id)

	var p Provider
	var raw []byte
	err := row.Scan(&p.ID, &p.Name, &p.SpecialtyID, &p.LocationID, &p.TimeZone, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule for provider %s: %w", id, err)
		}
	}
	if err := validate(p); err != nil {
		return nil, fmt.Errorf("provider %s: %w", id, err)
	}
	return &p, nil
}
