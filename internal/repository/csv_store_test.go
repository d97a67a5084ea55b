package repository

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vitals-compare/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCSVStore_ReducedRoundTrip(t *testing.T) {
	store := NewCSVStore(t.TempDir(), zap.NewNop())
	f := models.Float

	in := &models.ReducedTable{
		Kind: models.SourceDozee,
		Records: []models.ReducedRecord{
			{Time: "2024-01-01 22:15:00", HeartRate: f(61), RespirationRate: f(14.25)},
			{Time: "2024-01-01 22:15:05", HeartRate: nil, RespirationRate: f(0)},
			{Time: "2024-01-01 22:15:10", HeartRate: f(0.1), RespirationRate: nil},
		},
	}

	path, err := store.WriteReduced("P01_dozee", in)
	require.NoError(t, err)
	assert.Equal(t, store.ReducedPath("P01_dozee"), path)

	out, err := ReadReduced(path, models.SourceDozee)
	require.NoError(t, err)
	assert.Equal(t, in.Records, out.Records)
}

func TestCSVStore_MinutesRoundTrip(t *testing.T) {
	store := NewCSVStore(t.TempDir(), zap.NewNop())
	f := models.Float

	in := []models.MinuteBucket{
		{Day: "2024-01-01", MinuteKey: "10:00", AvgHeartRate: f(71), AvgRespirationRate: f(16), Samples: 2},
		{Day: "2024-01-01", MinuteKey: "10:01", AvgHeartRate: f(75), AvgRespirationRate: nil, Samples: 1},
		{MinuteKey: "10:02", AvgHeartRate: f(70.333333333333), AvgRespirationRate: f(15), Samples: 3},
	}

	path, err := store.WriteMinutes("P01_telemetry", in)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "Time,Heart Rate,Respiration Rate,Samples,Date\n10:00,71,16,2,2024-01-01\n10:01,75,,1,2024-01-01\n"))

	out, err := ReadMinutes(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCSVStore_OverwritesOnRerun(t *testing.T) {
	dir := t.TempDir()
	store := NewCSVStore(dir, zap.NewNop())
	f := models.Float

	_, err := store.WriteMinutes("run", []models.MinuteBucket{
		{MinuteKey: "10:00", AvgHeartRate: f(1), AvgRespirationRate: f(1), Samples: 1},
		{MinuteKey: "10:01", AvgHeartRate: f(1), AvgRespirationRate: f(1), Samples: 1},
	})
	require.NoError(t, err)

	path, err := store.WriteMinutes("run", []models.MinuteBucket{
		{MinuteKey: "11:00", AvgHeartRate: f(2), AvgRespirationRate: f(2), Samples: 4},
	})
	require.NoError(t, err)

	out, err := ReadMinutes(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "11:00", out[0].MinuteKey)

	// 不留下临时文件
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCSVStore_SeparateArtifactsPerStage(t *testing.T) {
	store := NewCSVStore(t.TempDir(), zap.NewNop())

	assert.NotEqual(t, store.ReducedPath("x"), store.MinutesPath("x"))
	assert.Equal(t, "x.reduced.csv", filepath.Base(store.ReducedPath("x")))
	assert.Equal(t, "x.minutes.csv", filepath.Base(store.MinutesPath("x")))
}

func TestReadMinutes_RejectsReducedFile(t *testing.T) {
	store := NewCSVStore(t.TempDir(), zap.NewNop())

	path, err := store.WriteReduced("x", &models.ReducedTable{Records: []models.ReducedRecord{{Time: "10:00:00"}}})
	require.NoError(t, err)

	_, err = ReadMinutes(path)
	require.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestReadReduced_MissingFile(t *testing.T) {
	_, err := ReadReduced(filepath.Join(t.TempDir(), "missing.csv"), models.SourceTelemetry)
	require.ErrorIs(t, err, models.ErrFileAccess)
}
