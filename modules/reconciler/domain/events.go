package domain

import "github.com/google/uuid"

// Events published on the in-process event bus as canonical entities are
// created or matched. Subscribers are observers only; reconciliation
// correctness never depends on them.

type OrganizationCreatedEvent struct {
	ID        uuid.UUID
	Name      string
	ScraperID string
}

type LocationCreatedEvent struct {
	ID        uuid.UUID
	Latitude  float64
	Longitude float64
	ScraperID string
}

type LocationMatchedEvent struct {
	ID        uuid.UUID
	ScraperID string
}

type ServiceCreatedEvent struct {
	ID             uuid.UUID
	Name           string
	OrganizationID uuid.UUID
	ScraperID      string
}

type JobCompletedEvent struct {
	JobID     string
	ScraperID string
}

type JobFailedEvent struct {
	JobID     string
	ScraperID string
	Err       error
}
