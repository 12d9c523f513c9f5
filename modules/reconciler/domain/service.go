package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is a canonical service offered by an organization. Uniqueness is
// on (Name, OrganizationID).
type Service struct {
	ID               uuid.UUID
	Name             string
	Description      string
	OrganizationID   uuid.UUID
	Status           string
	ConfidenceScore  *int
	ValidationStatus string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ServiceSource is one scraper's last report for a canonical service.
// Unique per (ServiceID, ScraperID).
type ServiceSource struct {
	ID              uuid.UUID
	ServiceID       uuid.UUID
	ScraperID       string
	Name            string
	Description     string
	OrganizationID  uuid.UUID
	Status          string
	ConfidenceScore *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ServiceAtLocation links a service to a location it is offered at, with a
// per-pair description and schedules. Unique per (ServiceID, LocationID).
type ServiceAtLocation struct {
	ID          uuid.UUID
	ServiceID   uuid.UUID
	LocationID  uuid.UUID
	Description string
}

// Phone attaches to an organization, service, or location via optional
// foreign keys.
type Phone struct {
	ID             uuid.UUID
	Number         string
	Extension      string
	Type           string
	OrganizationID *uuid.UUID
	ServiceID      *uuid.UUID
	LocationID     *uuid.UUID
}

// Language attaches to a service or location.
type Language struct {
	ID         uuid.UUID
	Name       string
	Code       string
	ServiceID  *uuid.UUID
	LocationID *uuid.UUID
}

// Schedule is an iCal-style recurrence attached to a service, location, or
// service-at-location link.
type Schedule struct {
	ID                  uuid.UUID
	Freq                string
	Wkst                string
	OpensAt             string
	ClosesAt            string
	Byday               string
	Description         string
	ServiceID           *uuid.UUID
	LocationID          *uuid.UUID
	ServiceAtLocationID *uuid.UUID
}

// DedupKey identifies equal schedules when attaching the union of
// service-level and location-level schedules to a link.
func (s Schedule) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", s.Freq, s.Wkst, s.OpensAt, s.ClosesAt)
}
