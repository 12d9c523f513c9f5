package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/infrastructure/persistence"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/retry"
)

// upsertRunner is the one retry policy shared by all creators: transient
// constraint violations (a concurrent worker racing the same insert) are
// retried with jittered backoff; exhaustion is persisted to the violations
// table and escalated.
type upsertRunner struct {
	policy     retry.Policy
	violations ViolationRepository
	log        *logrus.Entry
}

func newUpsertRunner(policy retry.Policy, violations ViolationRepository, log *logrus.Entry) *upsertRunner {
	return &upsertRunner{
		policy:     policy,
		violations: violations,
		log:        log,
	}
}

func (u *upsertRunner) run(ctx context.Context, table string, conflictData map[string]any, op func(context.Context) error) error {
	err := retry.Do(ctx, u.policy, persistence.IsTransientConstraint, func(attemptCtx context.Context) error {
		opErr := op(attemptCtx)
		if opErr != nil && persistence.IsTransientConstraint(opErr) {
			getMetrics().constraintRetries.WithLabelValues(table).Inc()
			u.log.WithError(opErr).WithField("table", table).Warn("transient constraint violation, retrying")
		}
		return opErr
	})
	if err == nil {
		return nil
	}
	if !persistence.IsTransientConstraint(err) {
		return err
	}

	getMetrics().violationsTotal.WithLabelValues(table).Inc()
	violation := domain.ConstraintViolation{
		ConstraintName:  persistence.ConstraintName(err),
		TableName:       table,
		Operation:       "upsert",
		ConflictingData: conflictData,
	}
	if logErr := composables.InTx(ctx, func(txCtx context.Context) error {
		return u.violations.Log(txCtx, violation)
	}); logErr != nil {
		u.log.WithError(logErr).WithField("table", table).Error("failed to persist constraint violation")
	}
	return fmt.Errorf("%w: %s on %s: %v", ErrRetriesExhausted, violation.ConstraintName, table, err)
}

// NormalizeName lowercases, trims, and collapses whitespace. Organization
// deduplication keys on this form.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
