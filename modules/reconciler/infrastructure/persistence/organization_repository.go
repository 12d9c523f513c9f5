package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
)

type OrganizationRepository struct{}

func NewOrganizationRepository() *OrganizationRepository {
	return &OrganizationRepository{}
}

// Upsert atomically finds or creates the canonical organization keyed by
// normalized name. On conflict every empty incoming field keeps the existing
// value. The returned flag is true when the row was inserted.
func (r *OrganizationRepository) Upsert(ctx context.Context, org domain.Organization) (uuid.UUID, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}

	var id uuid.UUID
	var isNew bool
	err = tx.QueryRow(ctx, `
INSERT INTO organization (name, normalized_name, description, website, email, year_incorporated, legal_status, tax_status, tax_id, uri)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (normalized_name) DO UPDATE SET
	description       = COALESCE(NULLIF(EXCLUDED.description, ''), organization.description),
	website           = COALESCE(NULLIF(EXCLUDED.website, ''), organization.website),
	email             = COALESCE(NULLIF(EXCLUDED.email, ''), organization.email),
	year_incorporated = COALESCE(EXCLUDED.year_incorporated, organization.year_incorporated),
	legal_status      = COALESCE(NULLIF(EXCLUDED.legal_status, ''), organization.legal_status),
	tax_status        = COALESCE(NULLIF(EXCLUDED.tax_status, ''), organization.tax_status),
	tax_id            = COALESCE(NULLIF(EXCLUDED.tax_id, ''), organization.tax_id),
	uri               = COALESCE(NULLIF(EXCLUDED.uri, ''), organization.uri),
	updated_at        = now()
RETURNING id, (xmax = 0) AS is_new
`,
		org.Name,
		org.NormalizedName,
		org.Description,
		org.Website,
		org.Email,
		pgNullableInt4(org.YearIncorporated),
		org.LegalStatus,
		org.TaxStatus,
		org.TaxID,
		org.URI,
	).Scan(&id, &isNew)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("organization upsert: %w", err)
	}
	return id, isNew, nil
}

// UpsertSource records what one scraper reported for a canonical
// organization, keyed by (organization_id, scraper_id).
func (r *OrganizationRepository) UpsertSource(ctx context.Context, src domain.OrganizationSource) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO organization_source (organization_id, scraper_id, name, description, website, email, year_incorporated, legal_status, tax_status, tax_id, uri)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (organization_id, scraper_id) DO UPDATE SET
	name              = EXCLUDED.name,
	description       = EXCLUDED.description,
	website           = EXCLUDED.website,
	email             = EXCLUDED.email,
	year_incorporated = EXCLUDED.year_incorporated,
	legal_status      = EXCLUDED.legal_status,
	tax_status        = EXCLUDED.tax_status,
	tax_id            = EXCLUDED.tax_id,
	uri               = EXCLUDED.uri,
	updated_at        = now()
`,
		pgUUID(src.OrganizationID),
		src.ScraperID,
		src.Name,
		src.Description,
		src.Website,
		src.Email,
		pgNullableInt4(src.YearIncorporated),
		src.LegalStatus,
		src.TaxStatus,
		src.TaxID,
		src.URI,
	)
	if err != nil {
		return fmt.Errorf("organization source upsert: %w", err)
	}
	return nil
}

// GetSources returns all scraper reports for an organization, most recently
// updated first.
func (r *OrganizationRepository) GetSources(ctx context.Context, organizationID uuid.UUID) ([]domain.OrganizationSource, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id, organization_id, scraper_id, name, description, website, email, year_incorporated, legal_status, tax_status, tax_id, uri, created_at, updated_at
FROM organization_source
WHERE organization_id = $1
ORDER BY updated_at DESC, id
`, pgUUID(organizationID))
	if err != nil {
		return nil, fmt.Errorf("organization sources query: %w", err)
	}
	defer rows.Close()

	var out []domain.OrganizationSource
	for rows.Next() {
		var s domain.OrganizationSource
		var yearInc pgtype.Int4
		if err := rows.Scan(
			&s.ID, &s.OrganizationID, &s.ScraperID, &s.Name, &s.Description,
			&s.Website, &s.Email, &yearInc, &s.LegalStatus, &s.TaxStatus,
			&s.TaxID, &s.URI, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("organization sources scan: %w", err)
		}
		s.YearIncorporated = scanIntPtr(yearInc)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var o domain.Organization
	var yearInc pgtype.Int4
	var parentID pgtype.UUID
	err = tx.QueryRow(ctx, `
SELECT id, name, normalized_name, description, website, email, year_incorporated, legal_status, tax_status, tax_id, uri, parent_organization_id, created_at, updated_at
FROM organization
WHERE id = $1
`, pgUUID(id)).Scan(
		&o.ID, &o.Name, &o.NormalizedName, &o.Description, &o.Website, &o.Email,
		&yearInc, &o.LegalStatus, &o.TaxStatus, &o.TaxID, &o.URI, &parentID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("organization get: %w", err)
	}
	o.YearIncorporated = scanIntPtr(yearInc)
	o.ParentOrganizationID = scanUUIDPtr(parentID)
	return &o, nil
}

// UpdateCanonical writes the merged view back onto the canonical row in a
// single update. Version history is untouched.
func (r *OrganizationRepository) UpdateCanonical(ctx context.Context, org domain.Organization) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
UPDATE organization SET
	name              = $2,
	description       = $3,
	website           = $4,
	email             = $5,
	year_incorporated = $6,
	legal_status      = $7,
	tax_status        = $8,
	tax_id            = $9,
	uri               = $10,
	updated_at        = now()
WHERE id = $1
`,
		pgUUID(org.ID),
		org.Name,
		org.Description,
		org.Website,
		org.Email,
		pgNullableInt4(org.YearIncorporated),
		org.LegalStatus,
		org.TaxStatus,
		org.TaxID,
		org.URI,
	)
	if err != nil {
		return fmt.Errorf("organization canonical update: %w", err)
	}
	return nil
}
