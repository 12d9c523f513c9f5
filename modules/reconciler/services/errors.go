package services

import (
	"fmt"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/serrors"
)

var (
	// ErrMalformedPayload means the job text survived none of the parse
	// fallbacks. Not retried; surfaced immediately.
	ErrMalformedPayload = serrors.NewError("RECONCILER_MALFORMED_PAYLOAD", "job carries no parsable result", "")

	// ErrRetriesExhausted means an atomic upsert kept losing races past the
	// retry budget. The conflict detail is persisted to the violations table
	// before this is raised.
	ErrRetriesExhausted = serrors.NewError("RECONCILER_RETRIES_EXHAUSTED", "constraint violation retries exhausted", "")

	// ErrMergeFailed is the expected-failure result of a merge recomputation.
	// Callers treat it as best-effort: log, count, continue.
	ErrMergeFailed = serrors.NewError("RECONCILER_MERGE_FAILED", "merge recomputation skipped", "")
)

// ProcessingError wraps a downstream failure with enough context for the
// queue layer to decide retry policy and support manual replay.
type ProcessingError struct {
	ScraperID string
	JobID     string
	Op        string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("reconciler %s (scraper %s, job %s): %v", e.Op, e.ScraperID, e.JobID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
