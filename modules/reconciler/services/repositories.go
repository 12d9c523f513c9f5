package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
)

// Repository contracts implemented by infrastructure/persistence. Defined
// here so creators can be exercised against fakes in unit tests.

type OrganizationRepository interface {
	Upsert(ctx context.Context, org domain.Organization) (uuid.UUID, bool, error)
	UpsertSource(ctx context.Context, src domain.OrganizationSource) error
	GetSources(ctx context.Context, organizationID uuid.UUID) ([]domain.OrganizationSource, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
	UpdateCanonical(ctx context.Context, org domain.Organization) error
}

type LocationRepository interface {
	LockCoordinateBucket(ctx context.Context, lat, lon float64) error
	FindWithinTolerance(ctx context.Context, lat, lon, tolerance float64) (*domain.Location, error)
	Insert(ctx context.Context, loc domain.Location) (uuid.UUID, error)
	UpdateOrganizationID(ctx context.Context, id, organizationID uuid.UUID) error
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	UpdateCanonical(ctx context.Context, loc domain.Location) error
	UpsertSource(ctx context.Context, src domain.LocationSource) error
	GetSources(ctx context.Context, locationID uuid.UUID) ([]domain.LocationSource, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Location, error)
	InsertAddress(ctx context.Context, a domain.Address) (uuid.UUID, error)
	InsertAccessibility(ctx context.Context, a domain.Accessibility) (uuid.UUID, error)
}

type ServiceRepository interface {
	Upsert(ctx context.Context, svc domain.Service) (uuid.UUID, bool, error)
	UpsertSource(ctx context.Context, src domain.ServiceSource) error
	GetSources(ctx context.Context, serviceID uuid.UUID) ([]domain.ServiceSource, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Service, error)
	UpdateCanonical(ctx context.Context, svc domain.Service) error
	EnsureServiceAtLocation(ctx context.Context, serviceID, locationID uuid.UUID, description string) (uuid.UUID, bool, error)
}

type AttributeRepository interface {
	InsertPhone(ctx context.Context, p domain.Phone) (uuid.UUID, error)
	InsertLanguage(ctx context.Context, l domain.Language) (uuid.UUID, error)
	InsertSchedule(ctx context.Context, s domain.Schedule) (uuid.UUID, error)
	ListLinkScheduleKeys(ctx context.Context, serviceAtLocationID uuid.UUID) (map[string]bool, error)
}

type VersionRepository interface {
	Insert(ctx context.Context, v domain.Version) (int, error)
	List(ctx context.Context, recordID uuid.UUID, recordType string) ([]domain.Version, error)
}

type ViolationRepository interface {
	Log(ctx context.Context, v domain.ConstraintViolation) error
}

type JobRepository interface {
	Enqueue(ctx context.Context, job domain.Job) (uuid.UUID, error)
	ClaimNext(ctx context.Context, maxAttempts int, staleRunning time.Duration) (*domain.Job, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string, maxAttempts int, retryDelay time.Duration) error
	QueueDepth(ctx context.Context) (int, error)
}
