package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/storage"
)

const (
	// LogDirName is the run log directory under the output directory
	LogDirName = "logs"
	// LatestRunFile holds the id of the latest successful run
	LatestRunFile = "LATEST_RUN"
)

// ErrNoLatestRun is returned when no run has succeeded in the output directory
var ErrNoLatestRun = errors.New("no successful run recorded")

// SchemaSnapshot lists the column layout of every table of a run
type SchemaSnapshot struct {
	RunID         string                      `json:"run_id"`
	CapturedAtUTC time.Time                   `json:"captured_at_utc"`
	Tables        map[string][]storage.Column `json:"tables"`
}

// NewSchemaSnapshot captures the columns of tables
func NewSchemaSnapshot(runID string, tables []*storage.Table, capturedAt time.Time) *SchemaSnapshot {
	snap := &SchemaSnapshot{
		RunID:         runID,
		CapturedAtUTC: capturedAt.UTC(),
		Tables:        make(map[string][]storage.Column, len(tables)),
	}
	for _, t := range tables {
		cols := t.Columns
		if cols == nil {
			cols = []storage.Column{}
		}
		snap.Tables[t.Name] = cols
	}
	return snap
}

// Writer writes run records under an output directory
type Writer struct {
	outputDir string
}

// NewWriter creates a writer for outputDir
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// LogDir returns the run log directory
func (w *Writer) LogDir() string {
	return filepath.Join(w.outputDir, LogDirName)
}

// ManifestPath returns the manifest path of runID
func (w *Writer) ManifestPath(runID string) string {
	return filepath.Join(w.LogDir(), "pipeline_"+runID+".json")
}

// SchemaPath returns the schema snapshot path of runID
func (w *Writer) SchemaPath(runID string) string {
	return filepath.Join(w.LogDir(), "schema_"+runID+".json")
}

// WriteManifest writes m as indented JSON and returns its path
func (w *Writer) WriteManifest(m *Manifest) (string, error) {
	path := w.ManifestPath(m.RunID)
	return path, w.writeJSON(path, m)
}

// WriteSchema writes snap as indented JSON and returns its path
func (w *Writer) WriteSchema(snap *SchemaSnapshot) (string, error) {
	path := w.SchemaPath(snap.RunID)
	return path, w.writeJSON(path, snap)
}

// ReportPath returns the generation report path of runID
func (w *Writer) ReportPath(runID string) string {
	return filepath.Join(w.LogDir(), "report_"+runID+".json")
}

// WriteReport writes the generation report of runID
func (w *Writer) WriteReport(runID string, report any) (string, error) {
	path := w.ReportPath(runID)
	return path, w.writeJSON(path, report)
}

// PublishLatest points LATEST_RUN at runID. The file is replaced by rename
// so readers never see a partial id.
func (w *Writer) PublishLatest(runID string) error {
	path := filepath.Join(w.outputDir, LatestRunFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(runID+"\n"), 0o600); err != nil {
		return apperrors.NewIOError("write", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.NewIOError("rename", path, err)
	}
	return nil
}

// Latest returns the id of the latest successful run
func (w *Writer) Latest() (string, error) {
	path := filepath.Join(w.outputDir, LatestRunFile)
	data, err := os.ReadFile(path) // #nosec G304 - path is built from the configured output directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoLatestRun
		}
		return "", apperrors.NewIOError("read", path, err)
	}
	runID := strings.TrimSpace(string(data))
	if runID == "" {
		return "", ErrNoLatestRun
	}
	return runID, nil
}

// ReadManifest loads the manifest of runID
func (w *Writer) ReadManifest(runID string) (*Manifest, error) {
	path := w.ManifestPath(runID)
	data, err := os.ReadFile(path) // #nosec G304 - path is built from the configured output directory
	if err != nil {
		return nil, apperrors.NewIOError("read", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.NewIOError("decode", path, err)
	}
	return &m, nil
}

func (w *Writer) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewIOError("create directory", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.NewInternalError("encode "+filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { // #nosec G306 - run logs are shared read-only artifacts
		return apperrors.NewIOError("write", path, err)
	}
	return nil
}
