// Package domain holds the canonical and source-scoped entity types the
// reconciler persists, plus the normalized job payload shapes it accepts.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a canonical, deduplicated organization row. Uniqueness is
// on NormalizedName.
type Organization struct {
	ID                   uuid.UUID
	Name                 string
	NormalizedName       string
	Description          string
	Website              string
	Email                string
	YearIncorporated     *int
	LegalStatus          string
	TaxStatus            string
	TaxID                string
	URI                  string
	ParentOrganizationID *uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// OrganizationSource is what one scraper last reported for a canonical
// organization. Unique per (OrganizationID, ScraperID); inputs to merging,
// never merged themselves.
type OrganizationSource struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	ScraperID        string
	Name             string
	Description      string
	Website          string
	Email            string
	YearIncorporated *int
	LegalStatus      string
	TaxStatus        string
	TaxID            string
	URI              string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
