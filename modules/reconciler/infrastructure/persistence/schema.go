package persistence

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/reconciler-schema.sql
var schemaFS embed.FS

// RunMigrations applies the reconciler schema. Every statement is IF NOT
// EXISTS, so this is safe to run on every worker start.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	ddl, err := schemaFS.ReadFile("schema/reconciler-schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := pool.Exec(ctx, string(ddl)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
