package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
)

// AttributeRepository handles the attachment tables shared across entity
// families: phones, languages, and schedules. None of these are
// independently deduplicated.
type AttributeRepository struct{}

func NewAttributeRepository() *AttributeRepository {
	return &AttributeRepository{}
}

func (r *AttributeRepository) InsertPhone(ctx context.Context, p domain.Phone) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO phone (number, extension, type, organization_id, service_id, location_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`,
		p.Number,
		p.Extension,
		p.Type,
		pgNullableUUID(p.OrganizationID),
		pgNullableUUID(p.ServiceID),
		pgNullableUUID(p.LocationID),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("phone insert: %w", err)
	}
	return id, nil
}

func (r *AttributeRepository) InsertLanguage(ctx context.Context, l domain.Language) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO language (name, code, service_id, location_id)
VALUES ($1, $2, $3, $4)
RETURNING id
`,
		l.Name,
		l.Code,
		pgNullableUUID(l.ServiceID),
		pgNullableUUID(l.LocationID),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("language insert: %w", err)
	}
	return id, nil
}

func (r *AttributeRepository) InsertSchedule(ctx context.Context, s domain.Schedule) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO schedule (freq, wkst, opens_at, closes_at, byday, description, service_id, location_id, service_at_location_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id
`,
		s.Freq,
		s.Wkst,
		s.OpensAt,
		s.ClosesAt,
		s.Byday,
		s.Description,
		pgNullableUUID(s.ServiceID),
		pgNullableUUID(s.LocationID),
		pgNullableUUID(s.ServiceAtLocationID),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("schedule insert: %w", err)
	}
	return id, nil
}

// ListLinkScheduleKeys returns the dedup keys of schedules already attached
// to a service-at-location link.
func (r *AttributeRepository) ListLinkScheduleKeys(ctx context.Context, serviceAtLocationID uuid.UUID) (map[string]bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT freq, wkst, opens_at, closes_at
FROM schedule
WHERE service_at_location_id = $1
`, pgUUID(serviceAtLocationID))
	if err != nil {
		return nil, fmt.Errorf("link schedules query: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var s domain.Schedule
		if err := rows.Scan(&s.Freq, &s.Wkst, &s.OpensAt, &s.ClosesAt); err != nil {
			return nil, fmt.Errorf("link schedules scan: %w", err)
		}
		keys[s.DedupKey()] = true
	}
	return keys, rows.Err()
}
