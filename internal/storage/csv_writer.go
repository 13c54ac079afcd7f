package storage

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
)

// TimestampLayout is the ISO-like timestamp format of the tabular files
const TimestampLayout = "2006-01-02 15:04:05"

// FormatValue renders one value for a tabular file; nil becomes an empty field
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.UTC().Format(TimestampLayout)
	case *int64:
		if x == nil {
			return ""
		}
		return strconv.FormatInt(*x, 10)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.UTC().Format(TimestampLayout)
	}
	return ""
}

// CSVWriter writes tables as UTF-8 CSV files with a header row
type CSVWriter struct {
	dir string
}

// NewCSVWriter creates a writer for dir, creating it if needed
func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewIOError("create directory", dir, err)
	}
	return &CSVWriter{dir: dir}, nil
}

// Path returns the file path of the named table
func (w *CSVWriter) Path(table string) string {
	return filepath.Join(w.dir, table+".csv")
}

// Write writes t to <dir>/<name>.csv and returns the path. A table with no
// rows is written as an empty file since it has no column order.
func (w *CSVWriter) Write(t *Table) (string, error) {
	path := w.Path(t.Name)
	f, err := os.Create(path) // #nosec G304 - path is built from the configured output directory
	if err != nil {
		return "", apperrors.NewIOError("create", path, err)
	}

	buf := bufio.NewWriter(f)
	cw := csv.NewWriter(buf)
	writeErr := func() error {
		if len(t.Columns) == 0 {
			return nil
		}
		if err := cw.Write(t.ColumnNames()); err != nil {
			return err
		}
		record := make([]string, len(t.Columns))
		for _, row := range t.Rows {
			for i, v := range row {
				record[i] = FormatValue(v)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		return buf.Flush()
	}()

	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return "", apperrors.NewIOError("write", path, writeErr)
	}
	return path, nil
}

// WriteAll writes every table and returns the paths keyed by table name
func (w *CSVWriter) WriteAll(tables []*Table) (map[string]string, error) {
	paths := make(map[string]string, len(tables))
	for _, t := range tables {
		path, err := w.Write(t)
		if err != nil {
			return nil, err
		}
		paths[t.Name] = path
	}
	return paths, nil
}
