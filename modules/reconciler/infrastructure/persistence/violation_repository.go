package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
)

// ViolationRepository appends to the reconciler_constraint_violations
// diagnostics table. Rows are written when an upsert exhausts its retries,
// to support manual replay.
type ViolationRepository struct{}

func NewViolationRepository() *ViolationRepository {
	return &ViolationRepository{}
}

func (r *ViolationRepository) Log(ctx context.Context, v domain.ConstraintViolation) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(v.ConflictingData)
	if err != nil {
		return fmt.Errorf("violation data marshal: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO reconciler_constraint_violations (constraint_name, table_name, operation, conflicting_data)
VALUES ($1, $2, $3, $4::jsonb)
`, v.ConstraintName, v.TableName, v.Operation, string(data))
	if err != nil {
		return fmt.Errorf("violation insert: %w", err)
	}
	return nil
}
