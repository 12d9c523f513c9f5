package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses in the reconciler queue table.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is a queued reconciliation job persisted in reconciler_jobs. Workers
// claim jobs with FOR UPDATE SKIP LOCKED, so concurrent workers never double
// process one.
type Job struct {
	ID          uuid.UUID
	ScraperID   string
	Metadata    Metadata
	ResultText  string
	Status      string
	Attempts    int
	AvailableAt time.Time
	LockedAt    *time.Time
	LastError   *string
	CreatedAt   time.Time
	CompletedAt *time.Time
}
