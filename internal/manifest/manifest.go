// Package manifest records what a generation run did: its identity, the
// outcome of every step, the produced row counts and the table schemas.
package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunIDLayout formats run ids as compact UTC timestamps
const RunIDLayout = "20060102T150405Z"

// Run and step statuses
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// datasetNamespace scopes dataset ids derived from generation parameters
var datasetNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://cartoncaps.com/analytics/datagen"))

// NewRunID returns the run id for a run started at t
func NewRunID(t time.Time) string {
	return t.UTC().Format(RunIDLayout)
}

// DatasetID derives a stable id from the seed and generation parameters.
// Two runs with equal inputs produce the same dataset and share the id.
func DatasetID(seed uint64, params any) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}
	sum := sha256.Sum256(encoded)
	name := fmt.Sprintf("%d:%x", seed, sum)
	return uuid.NewSHA1(datasetNamespace, []byte(name)).String(), nil
}

// Step is the record of one pipeline step
type Step struct {
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           *string `json:"error,omitempty"`
}

// Validation summarizes the consistency checks of a run
type Validation struct {
	Passed       bool           `json:"passed"`
	FailedChecks []string       `json:"failed_checks,omitempty"`
	Violations   map[string]int `json:"violations"`
}

// Manifest is the JSON record of a generation run
type Manifest struct {
	RunID           string          `json:"run_id"`
	DatasetID       string          `json:"dataset_id"`
	Seed            uint64          `json:"seed"`
	Params          json.RawMessage `json:"params"`
	StartedAtUTC    time.Time       `json:"started_at_utc"`
	EndedAtUTC      *time.Time      `json:"ended_at_utc,omitempty"`
	DurationSeconds float64         `json:"duration_seconds"`
	Status          string          `json:"status"`
	FailedStep      *string         `json:"failed_step,omitempty"`
	Steps           []Step          `json:"steps"`
	RowCounts       map[string]int  `json:"row_counts,omitempty"`
	Validation      *Validation     `json:"validation,omitempty"`
	Artifacts       []string        `json:"artifacts,omitempty"`

	now func() time.Time
}

// New starts the manifest of a run
func New(runID string, seed uint64, params any, startedAt time.Time) (*Manifest, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	datasetID, err := DatasetID(seed, params)
	if err != nil {
		return nil, err
	}

	return &Manifest{
		RunID:        runID,
		DatasetID:    datasetID,
		Seed:         seed,
		Params:       encoded,
		StartedAtUTC: startedAt.UTC(),
		Status:       StatusRunning,
		Steps:        []Step{},
		now:          time.Now,
	}, nil
}

// RunStep runs fn as the named step and records its status and duration.
// Steps after a failed step are not run and return nil.
func (m *Manifest) RunStep(name string, fn func() error) error {
	if m.Failed() {
		return nil
	}

	start := m.clock()
	err := fn()
	step := Step{
		Name:            name,
		Status:          StatusSuccess,
		DurationSeconds: roundSeconds(m.clock().Sub(start)),
	}
	if err != nil {
		msg := err.Error()
		step.Status = StatusFailed
		step.Error = &msg
		m.Status = StatusFailed
		m.FailedStep = &step.Name
	}
	m.Steps = append(m.Steps, step)
	return err
}

// Failed reports whether a step has failed
func (m *Manifest) Failed() bool {
	return m.Status == StatusFailed
}

// Finish closes the run; a run with no failed step succeeds
func (m *Manifest) Finish() {
	ended := m.clock().UTC()
	m.EndedAtUTC = &ended
	m.DurationSeconds = roundSeconds(ended.Sub(m.StartedAtUTC))
	if m.Status != StatusFailed {
		m.Status = StatusSuccess
	}
}

func (m *Manifest) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// roundSeconds rounds d to milliseconds
func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}
