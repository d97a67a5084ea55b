package aggregator

import (
	"errors"
	"fmt"
	"testing"

	"vitals-compare/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rec(ts string, hr, rr float64) models.ReducedRecord {
	return models.ReducedRecord{Time: ts, HeartRate: models.Float(hr), RespirationRate: models.Float(rr)}
}

func table(records ...models.ReducedRecord) *models.ReducedTable {
	return &models.ReducedTable{Kind: models.SourceTelemetry, Source: "test.csv", Records: records}
}

func TestAggregate_TelemetryExample(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	buckets, err := a.Aggregate(table(
		rec("2024-01-01 10:00:01", 70, 16),
		rec("2024-01-01 10:00:06", 72, 16),
		rec("2024-01-01 10:01:02", 75, 18),
	))
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	assert.Equal(t, "10:00", buckets[0].MinuteKey)
	assert.Equal(t, "2024-01-01", buckets[0].Day)
	assert.Equal(t, 71.0, *buckets[0].AvgHeartRate)
	assert.Equal(t, 16.0, *buckets[0].AvgRespirationRate)
	assert.Equal(t, 2, buckets[0].Samples)

	assert.Equal(t, "10:01", buckets[1].MinuteKey)
	assert.Equal(t, 75.0, *buckets[1].AvgHeartRate)
	assert.Equal(t, 18.0, *buckets[1].AvgRespirationRate)
	assert.Equal(t, 1, buckets[1].Samples)
}

func TestAggregate_SingleMinuteIsArithmeticMean(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	hrs := []float64{60, 61, 65, 70, 64}
	rrs := []float64{12, 14, 13, 15, 16}
	var records []models.ReducedRecord
	for i := range hrs {
		records = append(records, rec(fmt.Sprintf("22:15:%02d", i*10), hrs[i], rrs[i]))
	}

	buckets, err := a.Aggregate(table(records...))
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "22:15", buckets[0].MinuteKey)
	assert.InDelta(t, 64.0, *buckets[0].AvgHeartRate, 1e-9)
	assert.InDelta(t, 14.0, *buckets[0].AvgRespirationRate, 1e-9)
}

func TestAggregate_TwoContiguousMinutes(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	var records []models.ReducedRecord
	for i := 0; i < 5; i++ {
		records = append(records, rec(fmt.Sprintf("10:05:%02d", i*12), 80, 20))
	}
	for i := 0; i < 3; i++ {
		records = append(records, rec(fmt.Sprintf("10:06:%02d", i*20), 60+float64(i), 10))
	}

	buckets, err := a.Aggregate(table(records...))
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "10:05", buckets[0].MinuteKey)
	assert.Equal(t, 80.0, *buckets[0].AvgHeartRate)
	assert.Equal(t, 5, buckets[0].Samples)
	assert.Equal(t, "10:06", buckets[1].MinuteKey)
	assert.Equal(t, 61.0, *buckets[1].AvgHeartRate)
	assert.Equal(t, 10.0, *buckets[1].AvgRespirationRate)
	assert.Equal(t, 3, buckets[1].Samples)
}

func TestAggregate_AlreadyMinuteResolution(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	buckets, err := a.Aggregate(table(rec("22:15", 61, 14), rec("22:16", 62, 15), rec("22:17", 0, 15)))
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	for i, key := range []string{"22:15", "22:16", "22:17"} {
		assert.Equal(t, key, buckets[i].MinuteKey)
		assert.Equal(t, 1, buckets[i].Samples)
	}
	assert.Equal(t, 0.0, *buckets[2].AvgHeartRate)
}

func TestAggregate_MissingSamplesExcludedFromMean(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	buckets, err := a.Aggregate(table(
		models.ReducedRecord{Time: "10:00:00", HeartRate: models.Float(70)},
		models.ReducedRecord{Time: "10:00:05", HeartRate: models.Float(74)},
		models.ReducedRecord{Time: "10:00:10"},
	))
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 72.0, *buckets[0].AvgHeartRate)
	assert.Nil(t, buckets[0].AvgRespirationRate)
	assert.Equal(t, 3, buckets[0].Samples)
	assert.False(t, buckets[0].Evaluable())
}

func TestAggregate_EmptyTable(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	buckets, err := a.Aggregate(table())
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestAggregate_MalformedTimestamp(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	_, err := a.Aggregate(table(rec("10:00:00", 70, 16), rec("ten past", 70, 16)))
	require.ErrorIs(t, err, models.ErrMalformedTimestamp)

	var pe *models.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.StageAggregate, pe.Stage)
	assert.Equal(t, 2, pe.Record)
}

func TestAggregate_NonContiguousMinute(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	_, err := a.Aggregate(table(
		rec("2024-01-01 10:00:00", 70, 16),
		rec("2024-01-01 10:01:00", 70, 16),
		rec("2024-01-01 10:00:30", 70, 16),
	))
	require.ErrorIs(t, err, models.ErrUnsortedInput)
}

func TestAggregate_UndatedOutOfOrder(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	_, err := a.Aggregate(table(rec("10:05:00", 70, 16), rec("10:03:00", 70, 16)))
	require.ErrorIs(t, err, models.ErrUnsortedInput)
}

func TestAggregate_UndatedMidnightRollover(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	buckets, err := a.Aggregate(table(
		rec("23:59:10", 60, 12),
		rec("23:59:40", 62, 12),
		rec("00:00:05", 58, 11),
		rec("00:01:05", 57, 11),
	))
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, "23:59", buckets[0].MinuteKey)
	assert.Equal(t, "00:00", buckets[1].MinuteKey)
	assert.Equal(t, "00:01", buckets[2].MinuteKey)
}

func TestAggregate_SameClockMinuteOnTwoDays(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	buckets, err := a.Aggregate(table(
		rec("2024-01-01 22:00:00", 60, 12),
		rec("2024-01-02 22:00:00", 80, 18),
	))
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "2024-01-01 22:00", buckets[0].Label())
	assert.Equal(t, "2024-01-02 22:00", buckets[1].Label())
}

func TestAggregate_DatedDecreasingDay(t *testing.T) {
	a := NewMinuteAggregator(zap.NewNop())

	_, err := a.Aggregate(table(
		rec("2024-01-02 08:00:00", 60, 12),
		rec("2024-01-01 09:00:00", 60, 12),
	))
	require.ErrorIs(t, err, models.ErrUnsortedInput)
}

func TestMinuteGroup_CloseWithoutSamples(t *testing.T) {
	g := &minuteGroup{minute: clockMinute{key: "10:00"}}

	_, err := g.close()
	require.ErrorIs(t, err, models.ErrEmptyBucket)
}
