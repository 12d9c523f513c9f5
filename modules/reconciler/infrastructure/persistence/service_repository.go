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

type ServiceRepository struct{}

func NewServiceRepository() *ServiceRepository {
	return &ServiceRepository{}
}

// Upsert atomically finds or creates the canonical service keyed by
// (name, organization_id). The returned flag is true when the row was
// inserted.
func (r *ServiceRepository) Upsert(ctx context.Context, svc domain.Service) (uuid.UUID, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}

	var id uuid.UUID
	var isNew bool
	err = tx.QueryRow(ctx, `
INSERT INTO service (name, description, organization_id, status, confidence_score)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name, organization_id) DO UPDATE SET
	description      = COALESCE(NULLIF(EXCLUDED.description, ''), service.description),
	status           = COALESCE(NULLIF(EXCLUDED.status, ''), service.status),
	confidence_score = COALESCE(EXCLUDED.confidence_score, service.confidence_score),
	updated_at       = now()
RETURNING id, (xmax = 0) AS is_new
`,
		svc.Name,
		svc.Description,
		pgUUID(svc.OrganizationID),
		svc.Status,
		pgNullableInt4(svc.ConfidenceScore),
	).Scan(&id, &isNew)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("service upsert: %w", err)
	}
	return id, isNew, nil
}

func (r *ServiceRepository) UpsertSource(ctx context.Context, src domain.ServiceSource) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO service_source (service_id, scraper_id, name, description, organization_id, status, confidence_score)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (service_id, scraper_id) DO UPDATE SET
	name             = EXCLUDED.name,
	description      = EXCLUDED.description,
	organization_id  = EXCLUDED.organization_id,
	status           = EXCLUDED.status,
	confidence_score = EXCLUDED.confidence_score,
	updated_at       = now()
`,
		pgUUID(src.ServiceID),
		src.ScraperID,
		src.Name,
		src.Description,
		pgUUID(src.OrganizationID),
		src.Status,
		pgNullableInt4(src.ConfidenceScore),
	)
	if err != nil {
		return fmt.Errorf("service source upsert: %w", err)
	}
	return nil
}

func (r *ServiceRepository) GetSources(ctx context.Context, serviceID uuid.UUID) ([]domain.ServiceSource, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id, service_id, scraper_id, name, description, organization_id, status, confidence_score, created_at, updated_at
FROM service_source
WHERE service_id = $1
ORDER BY updated_at DESC, id
`, pgUUID(serviceID))
	if err != nil {
		return nil, fmt.Errorf("service sources query: %w", err)
	}
	defer rows.Close()

	var out []domain.ServiceSource
	for rows.Next() {
		var s domain.ServiceSource
		var score pgtype.Int4
		if err := rows.Scan(
			&s.ID, &s.ServiceID, &s.ScraperID, &s.Name, &s.Description,
			&s.OrganizationID, &s.Status, &score, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("service sources scan: %w", err)
		}
		s.ConfidenceScore = scanIntPtr(score)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var s domain.Service
	var score pgtype.Int4
	err = tx.QueryRow(ctx, `
SELECT id, name, description, organization_id, status, confidence_score, validation_status, created_at, updated_at
FROM service
WHERE id = $1
`, pgUUID(id)).Scan(
		&s.ID, &s.Name, &s.Description, &s.OrganizationID, &s.Status,
		&score, &s.ValidationStatus, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("service get: %w", err)
	}
	s.ConfidenceScore = scanIntPtr(score)
	return &s, nil
}

// UpdateCanonical writes the merged view back onto the canonical row.
func (r *ServiceRepository) UpdateCanonical(ctx context.Context, svc domain.Service) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
UPDATE service SET
	name             = $2,
	description      = $3,
	status           = $4,
	confidence_score = $5,
	updated_at       = now()
WHERE id = $1
`,
		pgUUID(svc.ID),
		svc.Name,
		svc.Description,
		svc.Status,
		pgNullableInt4(svc.ConfidenceScore),
	)
	if err != nil {
		return fmt.Errorf("service canonical update: %w", err)
	}
	return nil
}

// EnsureServiceAtLocation idempotently links a service to a location. The
// returned flag is true when the link was created by this call.
func (r *ServiceRepository) EnsureServiceAtLocation(ctx context.Context, serviceID, locationID uuid.UUID, description string) (uuid.UUID, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO service_at_location (service_id, location_id, description)
VALUES ($1, $2, $3)
ON CONFLICT (service_id, location_id) DO NOTHING
RETURNING id
`, pgUUID(serviceID), pgUUID(locationID), description).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("service_at_location insert: %w", err)
	}

	// Conflict path: the link already exists.
	err = tx.QueryRow(ctx, `
SELECT id FROM service_at_location WHERE service_id = $1 AND location_id = $2
`, pgUUID(serviceID), pgUUID(locationID)).Scan(&id)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("service_at_location lookup: %w", err)
	}
	return id, false, nil
}
