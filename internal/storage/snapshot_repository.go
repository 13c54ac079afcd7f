package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/logging"
)

// SnapshotRepository replaces the relational snapshot schema with the tables of a run
type SnapshotRepository struct {
	pool   *pgxpool.Pool
	schema string
}

// NewSnapshotRepository creates a snapshot repository writing into schema
func NewSnapshotRepository(pool *pgxpool.Pool, schema string) *SnapshotRepository {
	return &SnapshotRepository{
		pool:   pool,
		schema: schema,
	}
}

// postgresType maps a widened column type to its Postgres type
func postgresType(t ColumnType) string {
	switch t {
	case ColumnInteger:
		return "BIGINT"
	case ColumnReal:
		return "DOUBLE PRECISION"
	case ColumnTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// createTableSQL builds the CREATE TABLE statement of t inside schema
func createTableSQL(schema string, t *Table) string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		def := pgx.Identifier{c.Name}.Sanitize() + " " + postgresType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)",
		pgx.Identifier{schema, t.Name}.Sanitize(), strings.Join(defs, ",\n\t"))
}

// Replace drops and recreates the snapshot schema and bulk loads every table
// in one transaction. It returns the copied row count per table.
func (r *SnapshotRepository) Replace(ctx context.Context, tables []*Table) (map[string]int64, error) {
	logger := logging.FromContext(ctx).WithField("component", "snapshot")

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError("begin snapshot transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	schema := pgx.Identifier{r.schema}.Sanitize()
	if _, err := tx.Exec(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
		return nil, apperrors.NewStorageError("drop snapshot schema", err)
	}
	if _, err := tx.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		return nil, apperrors.NewStorageError("create snapshot schema", err)
	}

	counts := make(map[string]int64, len(tables))
	for _, t := range tables {
		if len(t.Columns) == 0 {
			logger.WithField("table", t.Name).Warn("Skipping empty table with no column order")
			counts[t.Name] = 0
			continue
		}

		if _, err := tx.Exec(ctx, createTableSQL(r.schema, t)); err != nil {
			return nil, apperrors.NewStorageError("create table "+t.Name, err)
		}

		copied, err := tx.CopyFrom(ctx,
			pgx.Identifier{r.schema, t.Name},
			t.ColumnNames(),
			pgx.CopyFromRows(t.CoercedRows()),
		)
		if err != nil {
			return nil, apperrors.NewStorageError("copy table "+t.Name, err)
		}
		counts[t.Name] = copied

		logger.WithFields(map[string]interface{}{
			"table": t.Name,
			"rows":  copied,
		}).Info("Loaded snapshot table")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperrors.NewStorageError("commit snapshot", err)
	}
	return counts, nil
}

// RowCount returns the number of rows of a snapshot table
func (r *SnapshotRepository) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + pgx.Identifier{r.schema, table}.Sanitize()
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, apperrors.NewStorageError("count "+table, err)
	}
	return count, nil
}
