package reconciler

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/infrastructure/persistence"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/services"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/worker"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/configuration"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/eventbus"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/retry"
)

// Module bundles the reconciler's wired service graph. Everything hangs off
// one pgxpool; transactions are threaded through context by composables.
type Module struct {
	Pool      *pgxpool.Pool
	Bus       eventbus.EventBus
	Processor *services.JobProcessor
	Jobs      services.JobRepository

	workers int
	opts    worker.Options
	log     *logrus.Entry
}

// New wires repositories, creators, and the processor from configuration.
func New(pool *pgxpool.Pool, conf *configuration.Configuration, log *logrus.Logger) *Module {
	entry := log.WithField("module", "reconciler")
	bus := eventbus.NewEventPublisher(log)
	policy := retry.DefaultPolicy()

	orgRepo := persistence.NewOrganizationRepository()
	locRepo := persistence.NewLocationRepository()
	svcRepo := persistence.NewServiceRepository()
	attrRepo := persistence.NewAttributeRepository()
	versionRepo := persistence.NewVersionRepository()
	violationRepo := persistence.NewViolationRepository()
	jobRepo := persistence.NewJobRepository()

	versions := services.NewVersionTracker(versionRepo, entry, conf.Reconciler.CreatedBy)
	merge := services.NewMergeStrategy(orgRepo, locRepo, svcRepo, entry)

	orgs := services.NewOrganizationCreator(orgRepo, attrRepo, versions, merge, violationRepo, bus, policy, entry)
	locations := services.NewLocationCreator(
		locRepo, attrRepo, versions, merge, violationRepo, bus, policy,
		conf.Reconciler.CoordinateTolerance, entry,
	)
	svcs := services.NewServiceCreator(svcRepo, attrRepo, versions, merge, violationRepo, bus, policy, entry)

	return &Module{
		Pool:      pool,
		Bus:       bus,
		Processor: services.NewJobProcessor(orgs, locations, svcs, entry),
		Jobs:      jobRepo,
		workers:   conf.Worker.Count,
		opts: worker.Options{
			PollInterval: conf.Worker.PollInterval,
			MaxAttempts:  conf.Worker.MaxAttempts,
			RetryDelay:   conf.Worker.RetryDelay,
			StaleRunning: conf.Worker.StaleRunning,
		},
		log: entry,
	}
}

// RunWorkers starts the configured number of claim loops and blocks until
// the context is cancelled.
func (m *Module) RunWorkers(ctx context.Context) error {
	ctx = composables.WithPool(ctx, m.Pool)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < m.workers; i++ {
		w := worker.New(m.Jobs, m.Processor, m.Bus, m.opts, m.log.WithField("worker", i))
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}
