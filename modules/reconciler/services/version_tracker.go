package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/infrastructure/persistence"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/retry"
)

// VersionTracker appends immutable, monotonically numbered snapshots of an
// entity's attributes. The number is computed inside the insert statement;
// a concurrent writer that reads the same max loses on the unique constraint
// and is retried, so sequences stay gapless with no repeats.
type VersionTracker struct {
	repo      VersionRepository
	policy    retry.Policy
	log       *logrus.Entry
	createdBy string
}

func NewVersionTracker(repo VersionRepository, log *logrus.Entry, createdBy string) *VersionTracker {
	// More headroom than the upsert policy: every concurrent writer to the
	// same record loses at least once per round, by construction.
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = 8
	policy.BaseDelay = 25 * time.Millisecond

	return &VersionTracker{
		repo:      repo,
		policy:    policy,
		log:       log.WithField("component", "VersionTracker"),
		createdBy: createdBy,
	}
}

// CreateVersion writes the next snapshot for (recordID, recordType).
// Job metadata keys are merged into the snapshot without overwriting entity
// fields; scraper identity is kept in source_id.
func (t *VersionTracker) CreateVersion(ctx context.Context, recordID uuid.UUID, recordType string, snapshot map[string]any, meta domain.Metadata) (int, error) {
	data := make(map[string]any, len(snapshot)+len(meta))
	for k, v := range meta {
		data[k] = v
	}
	for k, v := range snapshot {
		data[k] = v
	}

	var sourceID *string
	if s := meta.ScraperID(); s != "" {
		sourceID = &s
	}

	var num int
	err := retry.Do(ctx, t.policy, persistence.IsTransientConstraint, func(attemptCtx context.Context) error {
		return composables.InTx(attemptCtx, func(txCtx context.Context) error {
			var err error
			num, err = t.repo.Insert(txCtx, domain.Version{
				RecordID:   recordID,
				RecordType: recordType,
				Data:       data,
				CreatedBy:  t.createdBy,
				SourceID:   sourceID,
			})
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	t.log.WithFields(logrus.Fields{
		"record_id":   recordID,
		"record_type": recordType,
		"version_num": num,
	}).Debug("version snapshot written")
	return num, nil
}
