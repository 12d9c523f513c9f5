package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record types used in version snapshots.
const (
	RecordTypeOrganization = "organization"
	RecordTypeLocation     = "location"
	RecordTypeService      = "service"
)

// Version is an immutable snapshot of an entity's attributes at a point in
// time. VersionNum is gapless and strictly increasing per
// (RecordID, RecordType).
type Version struct {
	ID         int64
	RecordID   uuid.UUID
	RecordType string
	VersionNum int
	Data       map[string]any
	CreatedBy  string
	SourceID   *string
	CreatedAt  time.Time
}

// ConstraintViolation is an append-only diagnostics row recorded when an
// upsert exhausts its retries.
type ConstraintViolation struct {
	ID              int64
	ConstraintName  string
	TableName       string
	Operation       string
	ConflictingData map[string]any
	LoggedAt        time.Time
}
