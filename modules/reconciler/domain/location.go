package domain

import (
	"time"

	"github.com/google/uuid"
)

// Location is a canonical physical place. Locations are deduplicated by
// coordinate proximity, not by name; IsCanonical is true from creation.
type Location struct {
	ID             uuid.UUID
	Name           string
	Description    string
	Latitude       float64
	Longitude      float64
	OrganizationID *uuid.UUID
	IsCanonical    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LocationSource is one scraper's last report for a canonical location.
// Unique per (LocationID, ScraperID). Source rows never carry IsCanonical.
type LocationSource struct {
	ID             uuid.UUID
	LocationID     uuid.UUID
	ScraperID      string
	Name           string
	Description    string
	Latitude       float64
	Longitude      float64
	OrganizationID *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Address attaches to a location. Addresses are not independently
// deduplicated.
type Address struct {
	ID            uuid.UUID
	LocationID    uuid.UUID
	Address1      string
	Address2      string
	City          string
	StateProvince string
	PostalCode    string
	Country       string
	AddressType   string
}

// Accessibility describes physical access details for a location.
type Accessibility struct {
	ID          uuid.UUID
	LocationID  uuid.UUID
	Description string
	Details     string
	URL         string
}
