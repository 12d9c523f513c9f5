package domain

import (
	"github.com/google/uuid"
)

// Metadata is the job metadata map supplied by the queue layer. It must
// contain scraper_id; any additional keys are merged into version snapshots.
type Metadata map[string]any

const scraperIDKey = "scraper_id"

func (m Metadata) ScraperID() string {
	if m == nil {
		return ""
	}
	if v, ok := m[scraperIDKey].(string); ok {
		return v
	}
	return ""
}

// JobResult is the unit of work handed to the processor: the raw text an
// upstream extraction job produced, plus the job's identity.
type JobResult struct {
	JobID    string
	Metadata Metadata
	Text     string
}

// Payload is the single canonical internal representation every accepted
// job text is normalized into before any creator runs.
type Payload struct {
	Organization []OrganizationInput `json:"organization"`
	Service      []ServiceInput      `json:"service"`
	Location     []LocationInput     `json:"location"`
}

type OrganizationInput struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Website          string         `json:"website"`
	Email            string         `json:"email"`
	YearIncorporated *int           `json:"year_incorporated"`
	LegalStatus      string         `json:"legal_status"`
	TaxStatus        string         `json:"tax_status"`
	TaxID            string         `json:"tax_id"`
	URI              string         `json:"uri"`
	Phones           []PhoneInput   `json:"phones"`
	Services         []ServiceInput `json:"services"`
	Locations        []LocationInput `json:"locations"`
}

type LocationInput struct {
	Name          string               `json:"name"`
	Description   string               `json:"description"`
	Latitude      *float64             `json:"latitude"`
	Longitude     *float64             `json:"longitude"`
	Addresses     []AddressInput       `json:"addresses"`
	Phones        []PhoneInput         `json:"phones"`
	Schedules     []ScheduleInput      `json:"schedules"`
	Accessibility []AccessibilityInput `json:"accessibility"`
}

// HasCoordinates reports whether the location can enter coordinate matching.
// Locations without coordinates are skipped; geocoding happens upstream.
func (l LocationInput) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

type ServiceInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Phones      []PhoneInput    `json:"phones"`
	Languages   []LanguageInput `json:"languages"`
	Schedules   []ScheduleInput `json:"schedules"`
}

type AddressInput struct {
	Address1      string `json:"address_1"`
	Address2      string `json:"address_2"`
	City          string `json:"city"`
	StateProvince string `json:"state_province"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
	AddressType   string `json:"address_type"`
}

type PhoneInput struct {
	Number    string `json:"number"`
	Extension string `json:"extension"`
	Type      string `json:"type"`
}

type LanguageInput struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type ScheduleInput struct {
	Freq        string `json:"freq"`
	Wkst        string `json:"wkst"`
	OpensAt     string `json:"opens_at"`
	ClosesAt    string `json:"closes_at"`
	Byday       string `json:"byday"`
	Description string `json:"description"`
}

type AccessibilityInput struct {
	Description string `json:"description"`
	Details     string `json:"details"`
	URL         string `json:"url"`
}

// Summary is what a successfully processed job reports back to the queue
// layer.
type Summary struct {
	Status         string
	ScraperID      string
	OrganizationID *uuid.UUID
	LocationIDs    map[string]uuid.UUID
	ServiceIDs     map[string]uuid.UUID
}
