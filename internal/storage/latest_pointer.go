package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/cartoncaps/analytics/internal/errors"
)

// Redis keys of the run pointer
const (
	LatestRunKey   = "datagen:latest_run"
	RunHistoryKey  = "datagen:run_history"
	runInfoPrefix  = "datagen:runs:"
	runHistorySize = 50
)

// ErrNoLatestRun is returned when no successful run has been published
var ErrNoLatestRun = errors.New("no successful run has been published")

// RunPointer describes a published successful run
type RunPointer struct {
	RunID      string    `json:"run_id"`
	DatasetID  string    `json:"dataset_id"`
	OutputDir  string    `json:"output_dir"`
	FinishedAt time.Time `json:"finished_at"`
}

// LatestRunPointer publishes the id of the latest successful run to Redis
type LatestRunPointer struct {
	cache *RedisCache
}

// NewLatestRunPointer creates a pointer backed by cache
func NewLatestRunPointer(cache *RedisCache) *LatestRunPointer {
	return &LatestRunPointer{cache: cache}
}

// Publish records p as the latest run, stores its details and appends it to the bounded history
func (l *LatestRunPointer) Publish(ctx context.Context, p RunPointer) error {
	_, err := l.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, runInfoPrefix+p.RunID, map[string]interface{}{
			"run_id":      p.RunID,
			"dataset_id":  p.DatasetID,
			"output_dir":  p.OutputDir,
			"finished_at": p.FinishedAt.UTC().Format(time.RFC3339),
		})
		pipe.Set(ctx, LatestRunKey, p.RunID, 0)
		pipe.LPush(ctx, RunHistoryKey, p.RunID)
		pipe.LTrim(ctx, RunHistoryKey, 0, runHistorySize-1)
		return nil
	})
	if err != nil {
		return apperrors.NewStorageError("publish latest run", err)
	}
	return nil
}

// Latest returns the latest published run
func (l *LatestRunPointer) Latest(ctx context.Context) (*RunPointer, error) {
	client := l.cache.Client()

	runID, err := client.Get(ctx, LatestRunKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoLatestRun
	}
	if err != nil {
		return nil, apperrors.NewStorageError("read latest run", err)
	}

	fields, err := client.HGetAll(ctx, runInfoPrefix+runID).Result()
	if err != nil {
		return nil, apperrors.NewStorageError("read run details", err)
	}

	p := &RunPointer{
		RunID:     runID,
		DatasetID: fields["dataset_id"],
		OutputDir: fields["output_dir"],
	}
	if finished := fields["finished_at"]; finished != "" {
		if t, err := time.Parse(time.RFC3339, finished); err == nil {
			p.FinishedAt = t
		}
	}
	return p, nil
}

// History returns published run ids, newest first
func (l *LatestRunPointer) History(ctx context.Context) ([]string, error) {
	ids, err := l.cache.Client().LRange(ctx, RunHistoryKey, 0, -1).Result()
	if err != nil {
		return nil, apperrors.NewStorageError("read run history", err)
	}
	return ids, nil
}
