package storage

import (
	"time"

	"github.com/cartoncaps/analytics/internal/models"
)

// ColumnType is the widened storage type of a column
type ColumnType string

const (
	ColumnInteger   ColumnType = "INTEGER"
	ColumnReal      ColumnType = "REAL"
	ColumnTimestamp ColumnType = "TIMESTAMP"
	ColumnText      ColumnType = "TEXT"
)

// Column is a named, typed column of a table
type Column struct {
	Name     string     `json:"column"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`
}

// Table is one generated dataset in row form with a stable column order
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// nullableColumns holds the columns that may carry explicit nulls
var nullableColumns = map[string]map[string]bool{
	models.TableReferrals: {"referred_user_id": true, "converted_at": true},
	models.TableEvents:    {"referral_id": true},
}

// NewTable builds a table from records. The column order and types come
// from the first record; nil values of the first record infer TEXT.
func NewTable(name string, records []models.Record) *Table {
	t := &Table{Name: name, Rows: make([][]any, 0, len(records))}
	for _, r := range records {
		t.Rows = append(t.Rows, r.Values())
	}
	if len(records) == 0 {
		return t
	}

	names := records[0].Columns()
	types := InferColumnTypes(t.Rows[0])
	t.Columns = make([]Column, len(names))
	for i, n := range names {
		t.Columns[i] = Column{Name: n, Type: types[i], Nullable: nullableColumns[name][n]}
	}
	return t
}

// TablesFromDataset returns every table of d in output order
func TablesFromDataset(d *models.Dataset) []*Table {
	tables := make([]*Table, 0, len(models.TableNames))
	for _, name := range models.TableNames {
		tables = append(tables, NewTable(name, d.Records(name)))
	}
	return tables
}

// InferColumnTypes maps each value to INTEGER, REAL, TIMESTAMP or TEXT
func InferColumnTypes(values []any) []ColumnType {
	types := make([]ColumnType, len(values))
	for i, v := range values {
		types[i] = inferType(v)
	}
	return types
}

func inferType(v any) ColumnType {
	switch v.(type) {
	case int, int32, int64, bool:
		return ColumnInteger
	case float32, float64:
		return ColumnReal
	case time.Time:
		return ColumnTimestamp
	default:
		return ColumnText
	}
}

// ColumnNames returns the column names in order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// CoercedRows returns the rows with every value converted to its column's
// type, so later rows that differ from the first record still load.
func (t *Table) CoercedRows() [][]any {
	out := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		coerced := make([]any, len(row))
		for j, v := range row {
			coerced[j] = coerce(v, t.Columns[j].Type)
		}
		out[i] = coerced
	}
	return out
}

func coerce(v any, t ColumnType) any {
	if v == nil {
		return nil
	}
	switch t {
	case ColumnText:
		if s, ok := v.(string); ok {
			return s
		}
		return FormatValue(v)
	case ColumnReal:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case int:
			return float64(n)
		}
	case ColumnInteger:
		switch n := v.(type) {
		case bool:
			if n {
				return int64(1)
			}
			return int64(0)
		case int:
			return int64(n)
		}
	}
	return v
}
