package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
)

type LocationRepository struct{}

func NewLocationRepository() *LocationRepository {
	return &LocationRepository{}
}

// CoordinateBucketKey maps coordinates onto the advisory-lock key for their
// neighborhood. Coordinates are rounded to 4 decimal places (~11m), the same
// granularity as the default matching tolerance.
func CoordinateBucketKey(lat, lon float64) string {
	return fmt.Sprintf("location:%.4f:%.4f", lat, lon)
}

// LockCoordinateBucket serializes workers searching or creating in one
// coordinate neighborhood. The lock is transaction-scoped: Postgres releases
// it at commit or rollback, so no explicit unlock path is needed. Must be
// called inside a transaction.
func (r *LocationRepository) LockCoordinateBucket(ctx context.Context, lat, lon float64) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", CoordinateBucketKey(lat, lon)); err != nil {
		return fmt.Errorf("coordinate bucket lock: %w", err)
	}
	return nil
}

// FindWithinTolerance returns the nearest canonical location within the
// tolerance box, by Manhattan distance. SKIP LOCKED keeps a row another
// transaction is mid-creating from being falsely reported as available.
// Returns nil when nothing matches.
func (r *LocationRepository) FindWithinTolerance(ctx context.Context, lat, lon, tolerance float64) (*domain.Location, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var loc domain.Location
	var orgID pgtype.UUID
	err = tx.QueryRow(ctx, `
SELECT id, name, description, latitude, longitude, organization_id, is_canonical, created_at, updated_at
FROM location
WHERE is_canonical
  AND latitude  BETWEEN $1 - $3 AND $1 + $3
  AND longitude BETWEEN $2 - $3 AND $2 + $3
ORDER BY abs(latitude - $1) + abs(longitude - $2)
LIMIT 1
FOR UPDATE SKIP LOCKED
`, lat, lon, tolerance).Scan(
		&loc.ID, &loc.Name, &loc.Description, &loc.Latitude, &loc.Longitude,
		&orgID, &loc.IsCanonical, &loc.CreatedAt, &loc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("location proximity query: %w", err)
	}
	loc.OrganizationID = scanUUIDPtr(orgID)
	return &loc, nil
}

// Insert creates a canonical location. is_canonical is true from creation.
func (r *LocationRepository) Insert(ctx context.Context, loc domain.Location) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO location (name, description, latitude, longitude, organization_id, is_canonical)
VALUES ($1, $2, $3, $4, $5, TRUE)
RETURNING id
`,
		loc.Name,
		loc.Description,
		loc.Latitude,
		loc.Longitude,
		pgNullableUUID(loc.OrganizationID),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("location insert: %w", err)
	}
	return id, nil
}

// UpdateOrganizationID patches the location's organization back-reference.
func (r *LocationRepository) UpdateOrganizationID(ctx context.Context, id, organizationID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE location SET organization_id = $2, updated_at = now() WHERE id = $1`, pgUUID(id), pgUUID(organizationID)); err != nil {
		return fmt.Errorf("location organization patch: %w", err)
	}
	return nil
}

// UpdateName sets the location's display name.
func (r *LocationRepository) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE location SET name = $2, updated_at = now() WHERE id = $1`, pgUUID(id), name); err != nil {
		return fmt.Errorf("location name update: %w", err)
	}
	return nil
}

// UpdateCanonical writes the merged view back onto the canonical row.
func (r *LocationRepository) UpdateCanonical(ctx context.Context, loc domain.Location) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
UPDATE location SET
	name        = $2,
	description = $3,
	latitude    = $4,
	longitude   = $5,
	updated_at  = now()
WHERE id = $1
`,
		pgUUID(loc.ID),
		loc.Name,
		loc.Description,
		loc.Latitude,
		loc.Longitude,
	)
	if err != nil {
		return fmt.Errorf("location canonical update: %w", err)
	}
	return nil
}

func (r *LocationRepository) UpsertSource(ctx context.Context, src domain.LocationSource) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO location_source (location_id, scraper_id, name, description, latitude, longitude, organization_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (location_id, scraper_id) DO UPDATE SET
	name            = EXCLUDED.name,
	description     = EXCLUDED.description,
	latitude        = EXCLUDED.latitude,
	longitude       = EXCLUDED.longitude,
	organization_id = EXCLUDED.organization_id,
	updated_at      = now()
`,
		pgUUID(src.LocationID),
		src.ScraperID,
		src.Name,
		src.Description,
		src.Latitude,
		src.Longitude,
		pgNullableUUID(src.OrganizationID),
	)
	if err != nil {
		return fmt.Errorf("location source upsert: %w", err)
	}
	return nil
}

func (r *LocationRepository) GetSources(ctx context.Context, locationID uuid.UUID) ([]domain.LocationSource, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id, location_id, scraper_id, name, description, latitude, longitude, organization_id, created_at, updated_at
FROM location_source
WHERE location_id = $1
ORDER BY updated_at DESC, id
`, pgUUID(locationID))
	if err != nil {
		return nil, fmt.Errorf("location sources query: %w", err)
	}
	defer rows.Close()

	var out []domain.LocationSource
	for rows.Next() {
		var s domain.LocationSource
		var orgID pgtype.UUID
		if err := rows.Scan(
			&s.ID, &s.LocationID, &s.ScraperID, &s.Name, &s.Description,
			&s.Latitude, &s.Longitude, &orgID, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("location sources scan: %w", err)
		}
		s.OrganizationID = scanUUIDPtr(orgID)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *LocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Location, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var loc domain.Location
	var orgID pgtype.UUID
	err = tx.QueryRow(ctx, `
SELECT id, name, description, latitude, longitude, organization_id, is_canonical, created_at, updated_at
FROM location
WHERE id = $1
`, pgUUID(id)).Scan(
		&loc.ID, &loc.Name, &loc.Description, &loc.Latitude, &loc.Longitude,
		&orgID, &loc.IsCanonical, &loc.CreatedAt, &loc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("location get: %w", err)
	}
	loc.OrganizationID = scanUUIDPtr(orgID)
	return &loc, nil
}

func (r *LocationRepository) InsertAddress(ctx context.Context, a domain.Address) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO address (location_id, address_1, address_2, city, state_province, postal_code, country, address_type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`,
		pgUUID(a.LocationID),
		a.Address1,
		a.Address2,
		a.City,
		a.StateProvince,
		a.PostalCode,
		a.Country,
		a.AddressType,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("address insert: %w", err)
	}
	return id, nil
}

func (r *LocationRepository) InsertAccessibility(ctx context.Context, a domain.Accessibility) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO accessibility (location_id, description, details, url)
VALUES ($1, $2, $3, $4)
RETURNING id
`,
		pgUUID(a.LocationID),
		a.Description,
		a.Details,
		a.URL,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("accessibility insert: %w", err)
	}
	return id, nil
}
