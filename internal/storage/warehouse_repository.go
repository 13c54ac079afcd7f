package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/logging"
)

// WarehouseRepository replaces the ClickHouse snapshot tables of a run
type WarehouseRepository struct {
	db       *ClickHouseDB
	database string
}

// NewWarehouseRepository creates a repository writing tables into database
func NewWarehouseRepository(db *ClickHouseDB, database string) *WarehouseRepository {
	return &WarehouseRepository{db: db, database: database}
}

// clickHouseType maps a widened column type to a Nullable ClickHouse type
func clickHouseType(t ColumnType) string {
	switch t {
	case ColumnInteger:
		return "Nullable(Int64)"
	case ColumnReal:
		return "Nullable(Float64)"
	case ColumnTimestamp:
		return "Nullable(DateTime('UTC'))"
	default:
		return "Nullable(String)"
	}
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

func (r *WarehouseRepository) qualified(table string) string {
	return quoteIdent(r.database) + "." + quoteIdent(table)
}

// createWarehouseTableSQL builds the MergeTree table of t
func (r *WarehouseRepository) createWarehouseTableSQL(t *Table) string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = quoteIdent(c.Name) + " " + clickHouseType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n) ENGINE = MergeTree ORDER BY tuple()",
		r.qualified(t.Name), strings.Join(defs, ",\n\t"))
}

// Replace recreates every table and appends its rows in one batch per table
func (r *WarehouseRepository) Replace(ctx context.Context, tables []*Table) (map[string]int64, error) {
	logger := logging.FromContext(ctx).WithField("component", "warehouse")

	if err := r.db.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(r.database)); err != nil {
		return nil, apperrors.NewStorageError("create warehouse database", err)
	}

	counts := make(map[string]int64, len(tables))
	for _, t := range tables {
		if err := r.db.Exec(ctx, "DROP TABLE IF EXISTS "+r.qualified(t.Name)); err != nil {
			return nil, apperrors.NewStorageError("drop table "+t.Name, err)
		}
		if len(t.Columns) == 0 {
			logger.WithField("table", t.Name).Warn("Skipping empty table with no column order")
			counts[t.Name] = 0
			continue
		}
		if err := r.db.Exec(ctx, r.createWarehouseTableSQL(t)); err != nil {
			return nil, apperrors.NewStorageError("create table "+t.Name, err)
		}

		batch, err := r.db.Conn().PrepareBatch(ctx, "INSERT INTO "+r.qualified(t.Name))
		if err != nil {
			return nil, apperrors.NewStorageError("prepare batch "+t.Name, err)
		}
		for _, row := range t.CoercedRows() {
			if err := batch.Append(row...); err != nil {
				_ = batch.Abort()
				return nil, apperrors.NewStorageError("append row to "+t.Name, err)
			}
		}
		if err := batch.Send(); err != nil {
			return nil, apperrors.NewStorageError("send batch "+t.Name, err)
		}
		counts[t.Name] = int64(len(t.Rows))

		logger.WithFields(map[string]interface{}{
			"table": t.Name,
			"rows":  len(t.Rows),
		}).Info("Loaded warehouse table")
	}
	return counts, nil
}

// RecordRun appends a successful run to the datagen_runs log table
func (r *WarehouseRepository) RecordRun(ctx context.Context, runID, datasetID string, seed uint64, rowCounts map[string]int) error {
	id, err := uuid.Parse(datasetID)
	if err != nil {
		return apperrors.NewInvalidParameterError("dataset_id", err.Error())
	}
	counts := make(map[string]uint64, len(rowCounts))
	for k, v := range rowCounts {
		counts[k] = uint64(v) // #nosec G115 - row counts are never negative
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, "INSERT INTO datagen_runs (run_id, dataset_id, seed, loaded_at, row_counts)")
	if err != nil {
		return apperrors.NewStorageError("prepare run record", err)
	}
	if err := batch.Append(runID, id, seed, time.Now().UTC(), counts); err != nil {
		_ = batch.Abort()
		return apperrors.NewStorageError("append run record", err)
	}
	if err := batch.Send(); err != nil {
		return apperrors.NewStorageError("send run record", err)
	}
	return nil
}
