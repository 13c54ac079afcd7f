package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoncaps/analytics/internal/models"
)

func TestInferColumnTypes(t *testing.T) {
	got := InferColumnTypes([]any{int64(1), 2.5, testTime, "x", nil, true})
	assert.Equal(t, []ColumnType{
		ColumnInteger, ColumnReal, ColumnTimestamp, ColumnText, ColumnText, ColumnInteger,
	}, got)
}

func TestNewTable(t *testing.T) {
	table := NewTable(models.TableSchools, []models.Record{testSchool(1), testSchool(2)})

	assert.Equal(t, models.TableSchools, table.Name)
	assert.Equal(t, []string{"school_id", "name", "address", "city", "state", "zip", "created_at"}, table.ColumnNames())
	require.Len(t, table.Rows, 2)
	assert.Equal(t, ColumnInteger, table.Columns[0].Type)
	assert.Equal(t, ColumnTimestamp, table.Columns[6].Type)
	assert.False(t, table.Columns[0].Nullable)
}

func TestNewTable_Empty(t *testing.T) {
	table := NewTable(models.TableEvents, nil)

	assert.Empty(t, table.Columns)
	assert.Empty(t, table.Rows)
}

func TestNewTable_NullsInferTextAndAreNullable(t *testing.T) {
	table := NewTable(models.TableReferrals, testReferralRecords())

	byName := make(map[string]Column)
	for _, c := range table.Columns {
		byName[c.Name] = c
	}
	assert.Equal(t, ColumnText, byName["referred_user_id"].Type)
	assert.True(t, byName["referred_user_id"].Nullable)
	assert.Equal(t, ColumnText, byName["converted_at"].Type)
	assert.True(t, byName["converted_at"].Nullable)
	assert.Equal(t, ColumnTimestamp, byName["sent_at"].Type)
	assert.False(t, byName["sent_at"].Nullable)
}

func TestTable_CoercedRows(t *testing.T) {
	table := NewTable(models.TableReferrals, testReferralRecords())
	rows := table.CoercedRows()

	require.Len(t, rows, 2)
	assert.Nil(t, rows[0][3])
	assert.Nil(t, rows[0][6])
	assert.Equal(t, "7", rows[1][3])
	assert.Equal(t, "2024-01-17 09:30:00", rows[1][6])

	// Source rows are untouched
	assert.Equal(t, int64(7), table.Rows[1][3])
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, 3.0, coerce(int64(3), ColumnReal))
	assert.Equal(t, int64(1), coerce(true, ColumnInteger))
	assert.Equal(t, int64(0), coerce(false, ColumnInteger))
	assert.Equal(t, int64(5), coerce(5, ColumnInteger))
	assert.Equal(t, "2.5", coerce(2.5, ColumnText))
	assert.Nil(t, coerce(nil, ColumnTimestamp))
}

func TestTablesFromDataset(t *testing.T) {
	d := &models.Dataset{Schools: []*models.School{testSchool(1)}}
	tables := TablesFromDataset(d)

	require.Len(t, tables, len(models.TableNames))
	for i, name := range models.TableNames {
		assert.Equal(t, name, tables[i].Name)
	}
	assert.Len(t, tables[0].Rows, 1)
	assert.Empty(t, tables[1].Rows)
}

func TestCreateTableSQL(t *testing.T) {
	sql := createTableSQL("snapshot", NewTable(models.TableReferrals, testReferralRecords()))

	assert.Contains(t, sql, `CREATE TABLE "snapshot"."referrals" (`)
	assert.Contains(t, sql, `"referral_id" BIGINT NOT NULL`)
	assert.Contains(t, sql, `"referred_user_id" TEXT,`)
	assert.Contains(t, sql, `"sent_at" TIMESTAMP NOT NULL`)
}

func TestPostgresType(t *testing.T) {
	assert.Equal(t, "BIGINT", postgresType(ColumnInteger))
	assert.Equal(t, "DOUBLE PRECISION", postgresType(ColumnReal))
	assert.Equal(t, "TIMESTAMP", postgresType(ColumnTimestamp))
	assert.Equal(t, "TEXT", postgresType(ColumnText))
}
