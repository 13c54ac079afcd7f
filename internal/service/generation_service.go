// Package service orchestrates a generation run: generate, validate, write
// the tables, load the snapshot sinks and publish the run records.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/generator"
	"github.com/cartoncaps/analytics/internal/logging"
	"github.com/cartoncaps/analytics/internal/manifest"
	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/report"
	"github.com/cartoncaps/analytics/internal/retry"
	"github.com/cartoncaps/analytics/internal/storage"
	"github.com/cartoncaps/analytics/internal/validate"
)

// Step names of a generation run, in order
const (
	StepGenerate = "generate"
	StepValidate = "validate"
	StepWrite    = "write_tables"
	StepSchema   = "schema_snapshot"
	StepReport   = "report"
	StepSnapshot = "load_snapshot"
	StepUpload   = "upload_artifacts"
)

// SnapshotSink replaces a database snapshot with the tables of a run
type SnapshotSink interface {
	Replace(ctx context.Context, tables []*storage.Table) (map[string]int64, error)
}

// runRecorder is implemented by sinks that also log loaded runs
type runRecorder interface {
	RecordRun(ctx context.Context, runID, datasetID string, seed uint64, rowCounts map[string]int) error
}

// ArtifactUploader uploads the files of a run
type ArtifactUploader interface {
	UploadRun(ctx context.Context, runID string, files []string) ([]string, error)
}

// RunRegistry keeps the durable record of runs
type RunRegistry interface {
	Start(ctx context.Context, run *storage.RunRecord) error
	Finish(ctx context.Context, run *storage.RunRecord) error
}

// LatestPublisher publishes the latest successful run
type LatestPublisher interface {
	Publish(ctx context.Context, p storage.RunPointer) error
}

type runStep struct {
	name string
	run  func() error
}

// RunSummary is the outcome of a generation run
type RunSummary struct {
	RunID        string
	DatasetID    string
	Status       string
	ManifestPath string
	Manifest     *manifest.Manifest
	Report       *report.Report
	Validation   *validate.Report
}

// GenerationService runs the generation pipeline. Every sink is optional.
type GenerationService struct {
	snapshot    SnapshotSink
	artifacts   ArtifactUploader
	registry    RunRegistry
	pointer     LatestPublisher
	metrics     *report.Metrics
	metricsPath string
	retry       *retry.RetryConfig
	deviceBound *int
	now         func() time.Time
}

// NewGenerationService creates a service retrying sink calls with retryConfig
func NewGenerationService(retryConfig *retry.RetryConfig) *GenerationService {
	if retryConfig == nil {
		retryConfig = retry.DefaultRetryConfig()
	}
	return &GenerationService{
		retry:   retryConfig,
		metrics: report.NewMetrics(),
		now:     time.Now,
	}
}

// WithSnapshot loads every run into sink
func (s *GenerationService) WithSnapshot(sink SnapshotSink) *GenerationService {
	s.snapshot = sink
	return s
}

// WithArtifacts uploads the files of every run
func (s *GenerationService) WithArtifacts(uploader ArtifactUploader) *GenerationService {
	s.artifacts = uploader
	return s
}

// WithRegistry records every run in registry
func (s *GenerationService) WithRegistry(registry RunRegistry) *GenerationService {
	s.registry = registry
	return s
}

// WithLatestPublisher publishes successful runs to pointer
func (s *GenerationService) WithLatestPublisher(pointer LatestPublisher) *GenerationService {
	s.pointer = pointer
	return s
}

// WithMetricsTextfile writes the run metrics to path after every run
func (s *GenerationService) WithMetricsTextfile(path string) *GenerationService {
	s.metricsPath = path
	return s
}

// WithDeviceCollisionBound overrides the device collision bound; negative disables it
func (s *GenerationService) WithDeviceCollisionBound(bound int) *GenerationService {
	s.deviceBound = &bound
	return s
}

// Metrics returns the metrics of the runs so far
func (s *GenerationService) Metrics() *report.Metrics {
	return s.metrics
}

// Run executes a full generation run into outputDir. The manifest is written
// whether or not the run succeeds; the latest pointer moves only on success.
func (s *GenerationService) Run(ctx context.Context, params generator.Params, outputDir string) (*RunSummary, error) {
	started := s.now().UTC()
	runID := manifest.NewRunID(started)

	m, err := manifest.New(runID, params.Seed, params, started)
	if err != nil {
		return nil, apperrors.NewInternalError("start manifest", err)
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"run_id":     runID,
		"dataset_id": m.DatasetID,
		"seed":       params.Seed,
	})
	ctx = logging.WithLogger(ctx, logger)
	logger.Info("Starting generation run")

	summary := &RunSummary{RunID: runID, DatasetID: m.DatasetID, Manifest: m}
	writer := manifest.NewWriter(outputDir)
	s.registerStart(ctx, m, outputDir)

	var (
		result *generator.Result
		tables []*storage.Table
		files  []string
	)

	steps := []runStep{
		{StepGenerate, func() error {
			result, err = generator.Generate(params, logger)
			if err != nil {
				return err
			}
			m.RowCounts = result.Dataset.RowCounts()
			return nil
		}},
		{StepValidate, func() error {
			summary.Validation = s.validate(result)
			m.Validation = validationSummary(summary.Validation)
			return summary.Validation.Err()
		}},
		{StepWrite, func() error {
			tables = storage.TablesFromDataset(result.Dataset)
			csvWriter, err := storage.NewCSVWriter(outputDir)
			if err != nil {
				return err
			}
			paths, err := csvWriter.WriteAll(tables)
			if err != nil {
				return err
			}
			for _, name := range models.TableNames {
				files = append(files, paths[name])
			}
			return nil
		}},
		{StepSchema, func() error {
			path, err := writer.WriteSchema(manifest.NewSchemaSnapshot(runID, tables, s.now()))
			files = append(files, path)
			return err
		}},
		{StepReport, func() error {
			summary.Report = report.Build(result)
			summary.Report.Log(logger)
			s.metrics.Observe(summary.Report)
			path, err := writer.WriteReport(runID, summary.Report)
			files = append(files, path)
			return err
		}},
	}
	if s.snapshot != nil {
		steps = append(steps, runStep{StepSnapshot, func() error {
			return s.loadSnapshot(ctx, m, tables)
		}})
	}
	if s.artifacts != nil {
		steps = append(steps, runStep{StepUpload, func() error {
			return retry.WithRetry(ctx, s.retry, func(ctx context.Context, attempt int) error {
				keys, err := s.artifacts.UploadRun(ctx, runID, files)
				m.Artifacts = keys
				return err
			})
		}})
	}

	var runErr error
	for _, step := range steps {
		if err := m.RunStep(step.name, step.run); err != nil {
			runErr = err
			break
		}
	}

	m.Finish()
	summary.Status = m.Status

	manifestPath, err := writer.WriteManifest(m)
	if err != nil {
		logger.WithError(err).Error("Failed to write run manifest")
		if runErr == nil {
			runErr = err
		}
	}
	summary.ManifestPath = manifestPath

	if runErr == nil && s.artifacts != nil {
		if _, err := s.artifacts.UploadRun(ctx, runID, []string{manifestPath}); err != nil {
			logger.WithError(err).Warn("Failed to upload run manifest")
		}
	}

	if runErr == nil {
		runErr = s.publishLatest(ctx, writer, m, outputDir)
	}

	s.registerFinish(ctx, m, outputDir)
	s.exportMetrics(ctx, m)

	fields := map[string]interface{}{
		"status":           m.Status,
		"duration_seconds": m.DurationSeconds,
		"manifest":         manifestPath,
	}
	if runErr != nil {
		logger.WithFields(fields).WithError(runErr).Error("Generation run failed")
		return summary, runErr
	}
	logger.WithFields(fields).Info("Generation run complete")
	return summary, nil
}

func (s *GenerationService) validate(result *generator.Result) *validate.Report {
	bound := validate.DefaultDeviceCollisionBound(result.Funnel.Converted, generator.DeviceReuseRate)
	if s.deviceBound != nil {
		bound = *s.deviceBound
	}
	return validate.NewConsistencyChecker(bound).CheckDataset(result.Dataset)
}

func validationSummary(r *validate.Report) *manifest.Validation {
	v := &manifest.Validation{
		Passed:       r.Passed,
		FailedChecks: r.FailedChecks(),
		Violations:   make(map[string]int, len(r.Checks)),
	}
	for _, c := range r.Checks {
		v.Violations[c.Name] = c.ViolationCount
	}
	return v
}

// loadSnapshot replaces the snapshot and checks every table arrived whole
func (s *GenerationService) loadSnapshot(ctx context.Context, m *manifest.Manifest, tables []*storage.Table) error {
	var counts map[string]int64
	err := retry.WithRetry(ctx, s.retry, func(ctx context.Context, attempt int) error {
		var err error
		counts, err = s.snapshot.Replace(ctx, tables)
		return err
	})
	if err != nil {
		return err
	}

	for _, t := range tables {
		if counts[t.Name] != int64(len(t.Rows)) {
			return apperrors.NewInternalError(
				fmt.Sprintf("snapshot of %s loaded %d rows, expected %d", t.Name, counts[t.Name], len(t.Rows)), nil)
		}
	}

	if rec, ok := s.snapshot.(runRecorder); ok {
		return retry.WithRetry(ctx, s.retry, func(ctx context.Context, attempt int) error {
			return rec.RecordRun(ctx, m.RunID, m.DatasetID, m.Seed, m.RowCounts)
		})
	}
	return nil
}

func (s *GenerationService) publishLatest(ctx context.Context, writer *manifest.Writer, m *manifest.Manifest, outputDir string) error {
	if err := writer.PublishLatest(m.RunID); err != nil {
		return err
	}
	if s.pointer == nil {
		return nil
	}

	pointer := storage.RunPointer{
		RunID:      m.RunID,
		DatasetID:  m.DatasetID,
		OutputDir:  absPath(outputDir),
		FinishedAt: *m.EndedAtUTC,
	}
	return retry.WithRetry(ctx, s.retry, func(ctx context.Context, attempt int) error {
		return s.pointer.Publish(ctx, pointer)
	})
}

func (s *GenerationService) runRecord(m *manifest.Manifest, outputDir string) *storage.RunRecord {
	steps := make([]storage.RunStep, len(m.Steps))
	for i, st := range m.Steps {
		steps[i] = storage.RunStep{
			Name:            st.Name,
			Status:          st.Status,
			DurationSeconds: st.DurationSeconds,
			Error:           st.Error,
		}
	}
	return &storage.RunRecord{
		RunID:      m.RunID,
		DatasetID:  m.DatasetID,
		Seed:       m.Seed,
		Status:     m.Status,
		FailedStep: m.FailedStep,
		OutputDir:  absPath(outputDir),
		Params:     m.Params,
		RowCounts:  m.RowCounts,
		StartedAt:  m.StartedAtUTC,
		EndedAt:    m.EndedAtUTC,
		Steps:      steps,
	}
}

// Registry writes never fail a run
func (s *GenerationService) registerStart(ctx context.Context, m *manifest.Manifest, outputDir string) {
	if s.registry == nil {
		return
	}
	if err := s.registry.Start(ctx, s.runRecord(m, outputDir)); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to register run")
	}
}

func (s *GenerationService) registerFinish(ctx context.Context, m *manifest.Manifest, outputDir string) {
	if s.registry == nil {
		return
	}
	if err := s.registry.Finish(ctx, s.runRecord(m, outputDir)); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to record run result")
	}
}

func (s *GenerationService) exportMetrics(ctx context.Context, m *manifest.Manifest) {
	ended := s.now()
	if m.EndedAtUTC != nil {
		ended = *m.EndedAtUTC
	}
	s.metrics.ObserveRun(time.Duration(m.DurationSeconds*float64(time.Second)), !m.Failed(), ended)

	if s.metricsPath == "" {
		return
	}
	if err := s.metrics.WriteTextfile(s.metricsPath); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to write metrics textfile")
	}
}

func absPath(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
