package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoncaps/analytics/internal/config"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })
	return mr, cache
}

func TestNewRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		MaxConnections: 2,
	}

	cache, err := NewRedisCache(testContext(t), cfg)
	require.NoError(t, err)
	defer func() {
		if err := cache.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	assert.NoError(t, cache.Ping(testContext(t)))
	assert.NotNil(t, cache.Client())
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err := NewRedisCache(testContext(t), &config.RedisConfig{Host: host, Port: port, MaxConnections: 1})
	require.Error(t, err)
}

func TestLatestRunPointer_Empty(t *testing.T) {
	_, cache := newTestRedis(t)
	pointer := NewLatestRunPointer(cache)

	_, err := pointer.Latest(testContext(t))
	assert.ErrorIs(t, err, ErrNoLatestRun)
}

func TestLatestRunPointer_PublishAndRead(t *testing.T) {
	mr, cache := newTestRedis(t)
	pointer := NewLatestRunPointer(cache)
	ctx := testContext(t)

	finished := time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, pointer.Publish(ctx, RunPointer{RunID: "20240701T082900Z", DatasetID: "a", OutputDir: "./data", FinishedAt: finished}))
	require.NoError(t, pointer.Publish(ctx, RunPointer{RunID: "20240702T090000Z", DatasetID: "b", OutputDir: "./data"}))

	latest, err := pointer.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20240702T090000Z", latest.RunID)
	assert.Equal(t, "b", latest.DatasetID)

	got, err := mr.Get(LatestRunKey)
	require.NoError(t, err)
	assert.Equal(t, "20240702T090000Z", got)
	assert.Equal(t, "a", mr.HGet(runInfoPrefix+"20240701T082900Z", "dataset_id"))
	assert.Equal(t, finished.Format(time.RFC3339), mr.HGet(runInfoPrefix+"20240701T082900Z", "finished_at"))

	history, err := pointer.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20240702T090000Z", "20240701T082900Z"}, history)
}

func TestLatestRunPointer_HistoryIsBounded(t *testing.T) {
	_, cache := newTestRedis(t)
	pointer := NewLatestRunPointer(cache)
	ctx := testContext(t)

	for i := 0; i < runHistorySize+10; i++ {
		require.NoError(t, pointer.Publish(ctx, RunPointer{RunID: fmt.Sprintf("run-%03d", i)}))
	}

	history, err := pointer.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, runHistorySize)
	assert.Equal(t, fmt.Sprintf("run-%03d", runHistorySize+9), history[0])
}

func TestLatestRunPointer_StorageError(t *testing.T) {
	mr, cache := newTestRedis(t)
	pointer := NewLatestRunPointer(cache)
	mr.Close()

	err := pointer.Publish(testContext(t), RunPointer{RunID: "x"})
	require.Error(t, err)
}
