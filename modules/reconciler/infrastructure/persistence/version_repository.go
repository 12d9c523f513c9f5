package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
)

type VersionRepository struct{}

func NewVersionRepository() *VersionRepository {
	return &VersionRepository{}
}

// Insert appends the next version snapshot for (record_id, record_type).
// The next number is computed inside the INSERT itself, so two concurrent
// writers cannot both observe the same max; the loser hits the unique
// constraint and retries at a higher level.
func (r *VersionRepository) Insert(ctx context.Context, v domain.Version) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(v.Data)
	if err != nil {
		return 0, fmt.Errorf("version data marshal: %w", err)
	}

	var versionNum int
	err = tx.QueryRow(ctx, `
WITH current AS (
	SELECT COALESCE(MAX(version_num), 0) AS num
	FROM record_version
	WHERE record_id = $1 AND record_type = $2
)
INSERT INTO record_version (record_id, record_type, version_num, data, created_by, source_id)
SELECT $1, $2, current.num + 1, $3::jsonb, $4, $5
FROM current
RETURNING version_num
`,
		pgUUID(v.RecordID),
		v.RecordType,
		string(data),
		v.CreatedBy,
		pgNullableText(v.SourceID),
	).Scan(&versionNum)
	if err != nil {
		return 0, fmt.Errorf("version insert: %w", err)
	}
	return versionNum, nil
}

// List returns all versions for a record in ascending version order.
func (r *VersionRepository) List(ctx context.Context, recordID uuid.UUID, recordType string) ([]domain.Version, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id, record_id, record_type, version_num, data, created_by, source_id, created_at
FROM record_version
WHERE record_id = $1 AND record_type = $2
ORDER BY version_num
`, pgUUID(recordID), recordType)
	if err != nil {
		return nil, fmt.Errorf("version list query: %w", err)
	}
	defer rows.Close()

	var out []domain.Version
	for rows.Next() {
		var v domain.Version
		var data []byte
		var sourceID pgtype.Text
		if err := rows.Scan(&v.ID, &v.RecordID, &v.RecordType, &v.VersionNum, &data, &v.CreatedBy, &sourceID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("version list scan: %w", err)
		}
		if sourceID.Valid {
			s := sourceID.String
			v.SourceID = &s
		}
		if err := json.Unmarshal(data, &v.Data); err != nil {
			return nil, fmt.Errorf("version data unmarshal: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
