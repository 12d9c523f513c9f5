package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/services"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/eventbus"
)

// Options controls the claim loop. Zero values are replaced with defaults.
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration

	// ObserveQueueDepthEvery bounds how often the pending-jobs gauge is
	// refreshed; it is cheaper than counting on every tick.
	ObserveQueueDepthEvery time.Duration
}

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 30 * time.Second
	}
	if o.StaleRunning <= 0 {
		o.StaleRunning = 5 * time.Minute
	}
	if o.ObserveQueueDepthEvery <= 0 {
		o.ObserveQueueDepthEvery = 15 * time.Second
	}
}

// Worker claims jobs from reconciler_jobs and feeds them to the processor.
// Any number of workers may run concurrently; SKIP LOCKED claiming keeps
// them from double processing.
type Worker struct {
	jobs      services.JobRepository
	processor *services.JobProcessor
	bus       eventbus.EventBus
	opts      Options
	log       *logrus.Entry
}

func New(jobs services.JobRepository, processor *services.JobProcessor, bus eventbus.EventBus, opts Options, log *logrus.Entry) *Worker {
	opts.setDefaults()
	return &Worker{
		jobs:      jobs,
		processor: processor,
		bus:       bus,
		opts:      opts,
		log:       log.WithField("component", "Worker"),
	}
}

// Run polls for jobs until the context is cancelled. When a claim returns a
// job the next claim is attempted immediately; the ticker only paces empty
// polls.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if depth, err := w.jobs.QueueDepth(ctx); err == nil {
				getMetrics().queueDepth.Set(float64(depth))
			} else {
				w.log.WithError(err).Debug("queue depth check failed")
			}
			nextDepthAt = time.Now().Add(w.opts.ObserveQueueDepthEvery)
		}

		for {
			drained, err := w.processOnce(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				w.log.WithError(err).Warn("worker tick failed")
				break
			}
			if drained {
				break
			}
		}
	}
}

// processOnce claims and processes at most one job. It reports drained=true
// when the queue had nothing claimable.
func (w *Worker) processOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNext(ctx, w.opts.MaxAttempts, w.opts.StaleRunning)
	if err != nil {
		getMetrics().claims.WithLabelValues("error").Inc()
		return false, err
	}
	if job == nil {
		getMetrics().claims.WithLabelValues("empty").Inc()
		return true, nil
	}
	getMetrics().claims.WithLabelValues("claimed").Inc()

	log := w.log.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"scraper_id": job.ScraperID,
		"attempt":    job.Attempts,
	})

	result := domain.JobResult{
		JobID:    job.ID.String(),
		Metadata: job.Metadata,
		Text:     job.ResultText,
	}
	if result.Metadata == nil {
		result.Metadata = domain.Metadata{}
	}
	if result.Metadata.ScraperID() == "" && job.ScraperID != "" {
		result.Metadata["scraper_id"] = job.ScraperID
	}

	if _, procErr := w.processor.Process(ctx, result); procErr != nil {
		log.WithError(procErr).Error("job failed")
		if markErr := w.jobs.MarkFailed(ctx, job.ID, procErr.Error(), w.opts.MaxAttempts, w.opts.RetryDelay); markErr != nil {
			return false, markErr
		}
		w.bus.Publish(domain.JobFailedEvent{JobID: result.JobID, ScraperID: job.ScraperID, Err: procErr})
		return false, nil
	}

	if err := w.jobs.MarkCompleted(ctx, job.ID); err != nil {
		return false, err
	}
	w.bus.Publish(domain.JobCompletedEvent{JobID: result.JobID, ScraperID: job.ScraperID})
	log.Info("job completed")
	return false, nil
}
