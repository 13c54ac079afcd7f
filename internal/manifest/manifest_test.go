package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/storage"
)

type testParams struct {
	Users     int `json:"users"`
	Referrals int `json:"referrals"`
}

// fakeClock advances by step on every read
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestNewRunID(t *testing.T) {
	at := time.Date(2024, 6, 30, 23, 59, 59, 0, time.FixedZone("PDT", -7*3600))
	assert.Equal(t, "20240701T065959Z", NewRunID(at))
}

func TestDatasetID(t *testing.T) {
	a, err := DatasetID(42, testParams{Users: 10, Referrals: 5})
	require.NoError(t, err)
	b, err := DatasetID(42, testParams{Users: 10, Referrals: 5})
	require.NoError(t, err)
	c, err := DatasetID(43, testParams{Users: 10, Referrals: 5})
	require.NoError(t, err)
	d, err := DatasetID(42, testParams{Users: 11, Referrals: 5})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)

	id, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), id.Version())
}

func TestDatasetID_UnencodableParams(t *testing.T) {
	_, err := DatasetID(1, make(chan int))
	assert.Error(t, err)
}

func TestManifest_RunSteps(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := New(NewRunID(start), 42, testParams{Users: 10}, start)
	require.NoError(t, err)
	m.now = fakeClock(start, 500*time.Millisecond)

	assert.Equal(t, StatusRunning, m.Status)
	assert.JSONEq(t, `{"users":10,"referrals":0}`, string(m.Params))

	require.NoError(t, m.RunStep("generate", func() error { return nil }))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.RunStep("write", func() error { return boom }), boom)

	ran := false
	assert.NoError(t, m.RunStep("upload", func() error { ran = true; return nil }))
	assert.False(t, ran)

	m.Finish()

	require.Len(t, m.Steps, 2)
	assert.Equal(t, StatusSuccess, m.Steps[0].Status)
	assert.Equal(t, 0.5, m.Steps[0].DurationSeconds)
	assert.Equal(t, StatusFailed, m.Steps[1].Status)
	require.NotNil(t, m.Steps[1].Error)
	assert.Equal(t, "boom", *m.Steps[1].Error)

	assert.Equal(t, StatusFailed, m.Status)
	require.NotNil(t, m.FailedStep)
	assert.Equal(t, "write", *m.FailedStep)
	require.NotNil(t, m.EndedAtUTC)
}

func TestManifest_FinishSucceeds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := New("run", 1, testParams{}, start)
	require.NoError(t, err)
	m.now = func() time.Time { return start.Add(2500 * time.Millisecond) }

	require.NoError(t, m.RunStep("generate", func() error { return nil }))
	m.Finish()

	assert.Equal(t, StatusSuccess, m.Status)
	assert.Nil(t, m.FailedStep)
	assert.Equal(t, 2.5, m.DurationSeconds)
}

func TestWriter_ManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := New("20240101T000000Z", 42, testParams{Users: 3}, start)
	require.NoError(t, err)
	require.NoError(t, m.RunStep("generate", func() error { return nil }))
	m.RowCounts = map[string]int{models.TableUsers: 3}
	m.Validation = &Validation{Passed: true, Violations: map[string]int{"identifiers": 0}}
	m.Finish()

	path, err := w.WriteManifest(m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logs", "pipeline_20240101T000000Z.json"), path)

	got, err := w.ReadManifest(m.RunID)
	require.NoError(t, err)
	assert.Equal(t, m.DatasetID, got.DatasetID)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, 3, got.RowCounts[models.TableUsers])
	assert.True(t, got.Validation.Passed)
	require.Len(t, got.Steps, 1)
}

func TestWriter_Schema(t *testing.T) {
	w := NewWriter(t.TempDir())
	school := &models.School{SchoolID: 1, Name: "A", CreatedAt: time.Now()}
	tables := []*storage.Table{
		storage.NewTable(models.TableSchools, []models.Record{school}),
		storage.NewTable(models.TableEvents, nil),
	}

	snap := NewSchemaSnapshot("run", tables, time.Now())
	assert.Len(t, snap.Tables[models.TableSchools], 7)
	assert.NotNil(t, snap.Tables[models.TableEvents])

	path, err := w.WriteSchema(snap)
	require.NoError(t, err)

	data, err := os.ReadFile(path) // #nosec G304 - test file
	require.NoError(t, err)
	assert.Contains(t, string(data), `"column": "school_id"`)
	assert.Contains(t, string(data), `"type": "INTEGER"`)
	assert.Contains(t, string(data), `"events": []`)
}

func TestWriter_Latest(t *testing.T) {
	w := NewWriter(t.TempDir())

	_, err := w.Latest()
	assert.ErrorIs(t, err, ErrNoLatestRun)

	require.NoError(t, w.PublishLatest("20240101T000000Z"))
	require.NoError(t, w.PublishLatest("20240102T000000Z"))

	runID, err := w.Latest()
	require.NoError(t, err)
	assert.Equal(t, "20240102T000000Z", runID)
}
