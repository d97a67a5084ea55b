package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	rediscommon "vitals-compare/common/redis"
	"vitals-compare/internal/models"
	"vitals-compare/internal/publisher"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func testSummary() *models.RunSummary {
	finished := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &models.RunSummary{
		RunID:      uuid.MustParse("6f1c7c1e-8a8f-4d55-9d7a-2c3f4e5a6b7c"),
		Session:    "bed-12",
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Sources: []models.SourceResult{
			{
				Kind:          models.SourceTelemetry,
				Label:         "telemetry",
				Coverage:      models.Coverage{TotalMinutes: 10, EvaluableMinutes: 8},
				CoverageRatio: 0.8,
			},
			{
				Kind:          models.SourceDozee,
				Label:         "dozee",
				Coverage:      models.Coverage{TotalMinutes: 10, EvaluableMinutes: 5},
				CoverageRatio: 0.5,
			},
		},
	}
}

func TestStreamNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	_, client := setupTestRedis(t)

	n := publisher.NewStreamNotifier(client, "vitals-compare:summaries")
	require.NoError(t, n.Notify(ctx, testSummary()))

	msgs, err := rediscommon.ReadRange(ctx, client, "vitals-compare:summaries", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got models.RunSummary
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, "bed-12", got.Session)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, models.SourceDozee, got.Sources[1].Kind)
	assert.Equal(t, 5, got.Sources[1].Coverage.EvaluableMinutes)
}

func TestStreamNotifier_Contains(t *testing.T) {
	ctx := context.Background()
	_, client := setupTestRedis(t)
	n := publisher.NewStreamNotifier(client, "vitals-compare:summaries")

	summary := testSummary()
	ok, err := n.Contains(ctx, summary.RunID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, n.Notify(ctx, summary))
	other := testSummary()
	other.RunID = uuid.New()
	require.NoError(t, n.Notify(ctx, other))

	ok, err = n.Contains(ctx, summary.RunID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = n.Contains(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStreamNotifier_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	n := publisher.NewStreamNotifier(client, "vitals-compare:summaries")
	assert.Error(t, n.Notify(context.Background(), testSummary()))
}

func TestCoverageCache_Redis(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)

	cache := publisher.NewCoverageCache(publisher.NewRedisKVStore(client), time.Hour)
	require.NoError(t, cache.Notify(ctx, testSummary()))

	key := publisher.CoverageKey("bed-12", "telemetry")
	assert.Equal(t, "vitals-compare:bed-12:telemetry:coverage", key)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	got, err := cache.Get(ctx, "bed-12", "telemetry")
	require.NoError(t, err)
	assert.Equal(t, 8, got.Coverage.EvaluableMinutes)
	assert.InDelta(t, 0.8, got.CoverageRatio, 1e-9)

	_, err = cache.Get(ctx, "bed-12", "earlysense")
	assert.ErrorIs(t, err, publisher.ErrCacheMiss)
}

func TestCoverageCache_Fake(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKVStore()

	cache := publisher.NewCoverageCache(kv, 0)
	require.NoError(t, cache.Notify(ctx, testSummary()))
	assert.Len(t, kv.data, 2)
	assert.Equal(t, time.Duration(0), kv.ttls[publisher.CoverageKey("bed-12", "dozee")])

	kv.err = errors.New("boom")
	assert.Error(t, cache.Notify(ctx, testSummary()))
}

func TestCoverageCache_SameKindInputs(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKVStore()
	cache := publisher.NewCoverageCache(kv, time.Hour)

	summary := testSummary()
	summary.Sources = append(summary.Sources, models.SourceResult{
		Kind:          models.SourceDozee,
		Label:         "dozee-2",
		Coverage:      models.Coverage{TotalMinutes: 4, EvaluableMinutes: 1},
		CoverageRatio: 0.25,
	})
	require.NoError(t, cache.Notify(ctx, summary))
	assert.Len(t, kv.data, 3)

	first, err := cache.Get(ctx, "bed-12", "dozee")
	require.NoError(t, err)
	assert.Equal(t, 5, first.Coverage.EvaluableMinutes)

	second, err := cache.Get(ctx, "bed-12", "dozee-2")
	require.NoError(t, err)
	assert.Equal(t, models.SourceDozee, second.Source)
	assert.Equal(t, "dozee-2", second.Label)
	assert.Equal(t, 1, second.Coverage.EvaluableMinutes)
}

func TestMQTTNotifier_Notify(t *testing.T) {
	client := &fakeMQTT{}
	n := publisher.NewMQTTNotifier(client, "vitals-compare/", 1)

	require.NoError(t, n.Notify(context.Background(), testSummary()))
	require.Len(t, client.topics, 1)
	assert.Equal(t, "vitals-compare/bed-12/summary", client.topics[0])
	assert.Equal(t, byte(1), client.qos[0])
	assert.True(t, client.retained[0])

	var got models.RunSummary
	require.NoError(t, json.Unmarshal(client.payloads[0], &got))
	assert.Equal(t, uuid.MustParse("6f1c7c1e-8a8f-4d55-9d7a-2c3f4e5a6b7c"), got.RunID)
}

func TestMQTTNotifier_CancelledContext(t *testing.T) {
	client := &fakeMQTT{}
	n := publisher.NewMQTTNotifier(client, "vitals-compare", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, testSummary()), context.Canceled)
	assert.Empty(t, client.topics)
}

func TestDispatcher_FailuresDoNotStopOthers(t *testing.T) {
	broken := &fakeMQTT{err: errors.New("broker gone")}
	working := &fakeMQTT{}

	d := publisher.NewDispatcher(zap.NewNop(),
		publisher.NewMQTTNotifier(broken, "a", 0),
		publisher.NewMQTTNotifier(working, "b", 0),
	)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 1, d.Notify(context.Background(), testSummary()))
	assert.Len(t, working.topics, 1)
}
