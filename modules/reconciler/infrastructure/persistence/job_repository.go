package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
)

// JobRepository manages the reconciler_jobs queue table. Claims run in their
// own short transaction so a crashed worker's claim expires via the stale
// cutoff rather than blocking the queue.
type JobRepository struct{}

func NewJobRepository() *JobRepository {
	return &JobRepository{}
}

func (r *JobRepository) Enqueue(ctx context.Context, job domain.Job) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("job metadata marshal: %w", err)
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO reconciler_jobs (scraper_id, metadata, result_text)
VALUES ($1, $2::jsonb, $3)
RETURNING id
`, job.ScraperID, string(meta), job.ResultText).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("job enqueue: %w", err)
	}
	return id, nil
}

// ClaimNext picks one runnable job and marks it running, or returns nil when
// the queue is empty. SKIP LOCKED makes concurrent claims race-free.
func (r *JobRepository) ClaimNext(ctx context.Context, maxAttempts int, staleRunning time.Duration) (*domain.Job, error) {
	var claimed *domain.Job
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		staleCutoff := now.Add(-staleRunning)

		// A stale running job with no attempts left can never be claimed
		// again; park it as failed instead of leaving it running forever.
		_, err = tx.Exec(txCtx, `
UPDATE reconciler_jobs
SET status = $1, completed_at = now(), locked_at = NULL,
    last_error = COALESCE(last_error, 'worker lost with attempts exhausted')
WHERE id IN (
	SELECT id FROM reconciler_jobs
	WHERE status = $2 AND locked_at < $3 AND attempts >= $4
	FOR UPDATE SKIP LOCKED
)
`, domain.JobStatusFailed, domain.JobStatusRunning, staleCutoff, maxAttempts)
		if err != nil {
			return fmt.Errorf("job stale park: %w", err)
		}

		var job domain.Job
		var meta []byte
		var lockedAt, completedAt pgtype.Timestamptz
		var lastErr pgtype.Text
		err = tx.QueryRow(txCtx, `
SELECT id, scraper_id, metadata, result_text, status, attempts, available_at, locked_at, last_error, created_at, completed_at
FROM reconciler_jobs
WHERE (
	    (status = $1 AND available_at <= $2)
	 OR (status = $3 AND locked_at < $4)
)
  AND attempts < $5
ORDER BY available_at, created_at
LIMIT 1
FOR UPDATE SKIP LOCKED
`, domain.JobStatusPending, now, domain.JobStatusRunning, staleCutoff, maxAttempts).Scan(
			&job.ID, &job.ScraperID, &meta, &job.ResultText, &job.Status,
			&job.Attempts, &job.AvailableAt, &lockedAt, &lastErr,
			&job.CreatedAt, &completedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("job claim select: %w", err)
		}

		if err := json.Unmarshal(meta, &job.Metadata); err != nil {
			return fmt.Errorf("job metadata unmarshal: %w", err)
		}
		if lastErr.Valid {
			s := lastErr.String
			job.LastError = &s
		}

		_, err = tx.Exec(txCtx, `
UPDATE reconciler_jobs
SET status = $2, locked_at = $3, attempts = attempts + 1
WHERE id = $1
`, pgUUID(job.ID), domain.JobStatusRunning, now)
		if err != nil {
			return fmt.Errorf("job claim update: %w", err)
		}

		job.Status = domain.JobStatusRunning
		job.Attempts++
		job.LockedAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE reconciler_jobs
SET status = $2, completed_at = now(), locked_at = NULL, last_error = NULL
WHERE id = $1
`, pgUUID(id), domain.JobStatusCompleted)
	if err != nil {
		return fmt.Errorf("job complete: %w", err)
	}
	return nil
}

// MarkFailed records the failure and either schedules a retry or, when
// attempts are exhausted, parks the job as failed.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause string, maxAttempts int, retryDelay time.Duration) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE reconciler_jobs
SET status       = CASE WHEN attempts >= $2 THEN $3 ELSE $4 END,
    available_at = now() + make_interval(secs => $5),
    locked_at    = NULL,
    last_error   = $6,
    completed_at = CASE WHEN attempts >= $2 THEN now() ELSE NULL END
WHERE id = $1
`, pgUUID(id), maxAttempts, domain.JobStatusFailed, domain.JobStatusPending, retryDelay.Seconds(), cause)
	if err != nil {
		return fmt.Errorf("job fail: %w", err)
	}
	return nil
}

// QueueDepth reports how many jobs are currently claimable.
func (r *JobRepository) QueueDepth(ctx context.Context) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = tx.QueryRow(ctx, `
SELECT count(*) FROM reconciler_jobs WHERE status = $1 AND available_at <= now()
`, domain.JobStatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("job queue depth: %w", err)
	}
	return n, nil
}
