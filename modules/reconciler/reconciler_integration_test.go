//go:build integration

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/infrastructure/persistence"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/services"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/eventbus"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/retry"
)

const coordinateTolerance = 0.0001

type fixture struct {
	ctx       context.Context
	pool      *pgxpool.Pool
	orgs      *services.OrganizationCreator
	locations *services.LocationCreator
	svcs      *services.ServiceCreator
	versions  *services.VersionTracker
	processor *services.JobProcessor
	jobs      services.JobRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := os.Getenv("RECONCILER_TEST_DSN")
	if dsn == "" {
		t.Skip("RECONCILER_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(log)
	bus := eventbus.NewEventPublisher(log)
	policy := retry.DefaultPolicy()

	orgRepo := persistence.NewOrganizationRepository()
	locRepo := persistence.NewLocationRepository()
	svcRepo := persistence.NewServiceRepository()
	attrRepo := persistence.NewAttributeRepository()
	versionRepo := persistence.NewVersionRepository()
	violationRepo := persistence.NewViolationRepository()

	versions := services.NewVersionTracker(versionRepo, entry, "reconciler-test")
	merge := services.NewMergeStrategy(orgRepo, locRepo, svcRepo, entry)
	orgs := services.NewOrganizationCreator(orgRepo, attrRepo, versions, merge, violationRepo, bus, policy, entry)
	locations := services.NewLocationCreator(locRepo, attrRepo, versions, merge, violationRepo, bus, policy, coordinateTolerance, entry)
	svcs := services.NewServiceCreator(svcRepo, attrRepo, versions, merge, violationRepo, bus, policy, entry)

	return &fixture{
		ctx:       composables.WithPool(ctx, pool),
		pool:      pool,
		orgs:      orgs,
		locations: locations,
		svcs:      svcs,
		versions:  versions,
		processor: services.NewJobProcessor(orgs, locations, svcs, entry),
		jobs:      persistence.NewJobRepository(),
	}
}

func meta(scraperID string) domain.Metadata {
	return domain.Metadata{"scraper_id": scraperID}
}

func uniqueName(prefix string) string {
	return prefix + " " + uuid.NewString()[:8]
}

func TestIntegration_OrganizationUpsertIdempotent(t *testing.T) {
	f := setup(t)

	in := domain.OrganizationInput{
		Name:        uniqueName("Idempotent Org"),
		Description: "food pantry",
	}

	id1, isNew1, err := f.orgs.Process(f.ctx, in, meta("scraper_a"))
	require.NoError(t, err)
	assert.True(t, isNew1)

	id2, isNew2, err := f.orgs.Process(f.ctx, in, meta("scraper_a"))
	require.NoError(t, err)
	assert.False(t, isNew2)
	assert.Equal(t, id1, id2)
}

func TestIntegration_OrganizationUpsertConcurrent(t *testing.T) {
	f := setup(t)

	in := domain.OrganizationInput{
		Name:        uniqueName("Concurrent Org"),
		Description: "food pantry",
	}

	const workers = 8
	ids := make([]uuid.UUID, workers)
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _, errs[i] = f.orgs.Process(f.ctx, in, meta(fmt.Sprintf("scraper_%d", i)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestIntegration_LocationCoordinateTolerance(t *testing.T) {
	f := setup(t)

	// Distinct base coordinates per run so prior rows never match.
	baseLat := 40.0 + float64(time.Now().UnixNano()%100000)/1e3
	baseLon := -74.0

	lat1, lon1 := baseLat, baseLon
	in1 := domain.LocationInput{Name: "First Report", Description: "d", Latitude: &lat1, Longitude: &lon1}
	id1, isNew1, err := f.locations.Process(f.ctx, in1, nil, meta("scraper_a"))
	require.NoError(t, err)
	require.True(t, isNew1)

	// Within tolerance: same canonical location.
	lat2, lon2 := baseLat+0.00005, baseLon-0.00005
	in2 := domain.LocationInput{Name: "Second Report", Description: "d", Latitude: &lat2, Longitude: &lon2}
	id2, isNew2, err := f.locations.Process(f.ctx, in2, nil, meta("scraper_b"))
	require.NoError(t, err)
	assert.False(t, isNew2)
	assert.Equal(t, id1, id2)

	// Outside tolerance: a new canonical location.
	lat3, lon3 := baseLat+0.01, baseLon
	in3 := domain.LocationInput{Name: "Far Report", Description: "d", Latitude: &lat3, Longitude: &lon3}
	id3, isNew3, err := f.locations.Process(f.ctx, in3, nil, meta("scraper_c"))
	require.NoError(t, err)
	assert.True(t, isNew3)
	assert.NotEqual(t, id1, id3)
}

func TestIntegration_LocationConcurrentSameCoordinates(t *testing.T) {
	f := setup(t)

	lat := 41.0 + float64(time.Now().UnixNano()%100000)/1e3
	lon := -73.5

	const workers = 8
	ids := make([]uuid.UUID, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, g := lat, lon
			in := domain.LocationInput{Name: "Race", Description: "d", Latitude: &l, Longitude: &g}
			ids[i], _, errs[i] = f.locations.Process(f.ctx, in, nil, meta(fmt.Sprintf("scraper_%d", i)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "worker %d created a duplicate location", i)
	}
}

func TestIntegration_VersionMonotonicity(t *testing.T) {
	f := setup(t)

	recordID := uuid.New()

	const writers = 10
	nums := make([]int, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nums[i], errs[i] = f.versions.CreateVersion(
				f.ctx, recordID, domain.RecordTypeOrganization,
				map[string]any{"writer": i}, meta("scraper_a"),
			)
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[nums[i]], "duplicate version_num %d", nums[i])
		seen[nums[i]] = true
	}
	for n := 1; n <= writers; n++ {
		assert.True(t, seen[n], "missing version_num %d", n)
	}
}

func TestIntegration_EndToEndJob(t *testing.T) {
	f := setup(t)

	orgName := uniqueName("End To End Org")
	lat := 42.0 + float64(time.Now().UnixNano()%100000)/1e3
	text := fmt.Sprintf(`{
		"organization": [{"name": %q, "description": "full service pantry"}],
		"service": [{"name": "Grocery Distribution", "description": "weekly bags", "schedules": [{"freq": "WEEKLY", "wkst": "MO", "opens_at": "09:00", "closes_at": "12:00"}]}],
		"location": [
			{"name": "Main Site", "description": "front entrance", "latitude": %f, "longitude": -73.9,
			 "addresses": [{"address_1": "1 Main St", "city": "Springfield", "state_province": "NY", "postal_code": "10001", "country": "US"}]},
			{"name": "No Coords Site", "description": "skipped"}
		]
	}`, orgName, lat)

	summary, err := f.processor.Process(f.ctx, domain.JobResult{
		JobID:    uuid.NewString(),
		Metadata: meta("scraper_e2e"),
		Text:     text,
	})
	require.NoError(t, err)
	assert.Equal(t, "success", summary.Status)
	require.NotNil(t, summary.OrganizationID)
	assert.Len(t, summary.LocationIDs, 1, "location without coordinates must be skipped")
	assert.Len(t, summary.ServiceIDs, 1)

	// A service_at_location link must exist for the co-occurring pair.
	var links int
	err = f.pool.QueryRow(f.ctx,
		"SELECT count(*) FROM service_at_location WHERE service_id = $1",
		summary.ServiceIDs["Grocery Distribution"],
	).Scan(&links)
	require.NoError(t, err)
	assert.Equal(t, 1, links)

	// Reprocessing the same job is idempotent: no duplicate links.
	_, err = f.processor.Process(f.ctx, domain.JobResult{
		JobID:    uuid.NewString(),
		Metadata: meta("scraper_e2e"),
		Text:     text,
	})
	require.NoError(t, err)
	err = f.pool.QueryRow(f.ctx,
		"SELECT count(*) FROM service_at_location WHERE service_id = $1",
		summary.ServiceIDs["Grocery Distribution"],
	).Scan(&links)
	require.NoError(t, err)
	assert.Equal(t, 1, links)
}

func TestIntegration_MalformedPayload(t *testing.T) {
	f := setup(t)

	_, err := f.processor.Process(f.ctx, domain.JobResult{
		JobID:    uuid.NewString(),
		Metadata: meta("scraper_bad"),
		Text:     "not json",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrMalformedPayload))

	var procErr *services.ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, "scraper_bad", procErr.ScraperID)
}

func TestIntegration_JobQueueClaimAndComplete(t *testing.T) {
	f := setup(t)

	id, err := f.jobs.Enqueue(f.ctx, domain.Job{
		ScraperID:  "scraper_queue",
		Metadata:   meta("scraper_queue"),
		ResultText: fmt.Sprintf(`{"organization":[{"name":%q,"description":"d"}]}`, uniqueName("Queued Org")),
	})
	require.NoError(t, err)

	deadline := time.Now().Add(10 * time.Second)
	var claimed *domain.Job
	for time.Now().Before(deadline) {
		job, err := f.jobs.ClaimNext(f.ctx, 3, 5*time.Minute)
		require.NoError(t, err)
		if job == nil {
			break
		}
		if job.ID == id {
			claimed = job
			break
		}
		// Another test's leftover job; finish it and keep claiming.
		require.NoError(t, f.jobs.MarkCompleted(f.ctx, job.ID))
	}
	require.NotNil(t, claimed, "enqueued job was never claimed")
	assert.Equal(t, domain.JobStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	require.NoError(t, f.jobs.MarkCompleted(f.ctx, claimed.ID))

	// A completed job is not claimable again.
	again, err := f.jobs.ClaimNext(f.ctx, 3, 5*time.Minute)
	require.NoError(t, err)
	if again != nil {
		assert.NotEqual(t, id, again.ID)
		_ = f.jobs.MarkCompleted(f.ctx, again.ID)
	}
}

func TestIntegration_StaleExhaustedJobParkedAsFailed(t *testing.T) {
	f := setup(t)

	id, err := f.jobs.Enqueue(f.ctx, domain.Job{
		ScraperID:  "scraper_stale",
		Metadata:   meta("scraper_stale"),
		ResultText: `{"organization":[{"name":"Stale Org","description":"d"}]}`,
	})
	require.NoError(t, err)

	// Simulate a worker that died mid-job on its last attempt.
	_, err = f.pool.Exec(f.ctx, `
UPDATE reconciler_jobs
SET status = $2, attempts = 3, locked_at = now() - interval '1 hour'
WHERE id = $1
`, id, domain.JobStatusRunning)
	require.NoError(t, err)

	// The claim path parks it; whatever else it claims is irrelevant here.
	job, err := f.jobs.ClaimNext(f.ctx, 3, 5*time.Minute)
	require.NoError(t, err)
	if job != nil {
		assert.NotEqual(t, id, job.ID)
		require.NoError(t, f.jobs.MarkCompleted(f.ctx, job.ID))
	}

	var status string
	var lastErr *string
	err = f.pool.QueryRow(f.ctx, "SELECT status, last_error FROM reconciler_jobs WHERE id = $1", id).Scan(&status, &lastErr)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, status)
	require.NotNil(t, lastErr)
	assert.NotEmpty(t, *lastErr)
}

func TestIntegration_MergeLongestDescription(t *testing.T) {
	f := setup(t)

	name := uniqueName("Merge Org")
	short := domain.OrganizationInput{Name: name, Description: "short"}
	long := domain.OrganizationInput{Name: name, Description: "a considerably longer description of services"}

	id, isNew, err := f.orgs.Process(f.ctx, short, meta("scraper_a"))
	require.NoError(t, err)
	require.True(t, isNew)

	_, isNew, err = f.orgs.Process(f.ctx, long, meta("scraper_b"))
	require.NoError(t, err)
	require.False(t, isNew)

	var desc string
	err = f.pool.QueryRow(f.ctx, "SELECT description FROM organization WHERE id = $1", id).Scan(&desc)
	require.NoError(t, err)
	assert.Equal(t, long.Description, desc)
}
