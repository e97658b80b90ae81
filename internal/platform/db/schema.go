package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by EnsureSchema.
func Schema() string {
	return schemaSQL
}

// EnsureSchema creates the dispatch tables and indexes when missing. The DDL
// is idempotent and runs in a single transaction.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	err := WithTx(ctx, pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, schemaSQL)
		return err
	})
	if err != nil {
		return fmt.Errorf("platform/db: ensure schema: %w", err)
	}
	return nil
}
