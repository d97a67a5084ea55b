package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"vitals-compare/internal/models"
	"vitals-compare/internal/publisher"
	"vitals-compare/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrReadbackMismatch 回读内容与本次运行结果不一致
var ErrReadbackMismatch = errors.New("readback mismatch")

// BucketReader 按 (session, label) 读回分钟数据（repository.MinuteBucketRepository 实现了该接口）
type BucketReader interface {
	ListSource(ctx context.Context, session, label string) ([]models.MinuteBucket, error)
}

// CoverageReader 读回缓存的覆盖率（publisher.CoverageCache 实现了该接口）
type CoverageReader interface {
	Get(ctx context.Context, session, label string) (*publisher.CachedCoverage, error)
}

// SummaryReader 检查汇总流（publisher.StreamNotifier 实现了该接口）
type SummaryReader interface {
	Contains(ctx context.Context, runID uuid.UUID) (bool, error)
}

// Verifier 运行结束后回读各个输出端，确认与内存中的结果一致
// 未配置的输出端（nil）跳过
type Verifier struct {
	buckets BucketReader
	cache   CoverageReader
	stream  SummaryReader
	logger  *zap.Logger
}

// NewVerifier 创建 Verifier
func NewVerifier(buckets BucketReader, cache CoverageReader, stream SummaryReader, logger *zap.Logger) *Verifier {
	return &Verifier{
		buckets: buckets,
		cache:   cache,
		stream:  stream,
		logger:  logger,
	}
}

// Verify 回读分钟 CSV、数据库、覆盖率缓存和汇总流
func (v *Verifier) Verify(ctx context.Context, summary *models.RunSummary) error {
	for _, src := range summary.Sources {
		if src.MinutesPath != "" {
			got, err := repository.ReadMinutes(src.MinutesPath)
			if err != nil {
				return err
			}
			if err := sameBuckets(src.Buckets, got); err != nil {
				return fmt.Errorf("%w: %s minutes file: %v", ErrReadbackMismatch, src.Label, err)
			}
		}

		if v.buckets != nil {
			got, err := v.buckets.ListSource(ctx, summary.Session, src.Label)
			if err != nil {
				return fmt.Errorf("failed to read back %s buckets: %w", src.Label, err)
			}
			if err := sameBuckets(src.Buckets, got); err != nil {
				return fmt.Errorf("%w: %s database rows: %v", ErrReadbackMismatch, src.Label, err)
			}
		}

		if v.cache != nil {
			cached, err := v.cache.Get(ctx, summary.Session, src.Label)
			if err != nil {
				return fmt.Errorf("failed to read back %s coverage: %w", src.Label, err)
			}
			if cached.RunID != summary.RunID || cached.Coverage != src.Coverage {
				return fmt.Errorf("%w: %s coverage cache holds run %s %+v", ErrReadbackMismatch, src.Label, cached.RunID, cached.Coverage)
			}
		}

		v.logger.Debug("Verified source outputs", zap.String("label", src.Label))
	}

	if v.stream != nil {
		ok, err := v.stream.Contains(ctx, summary.RunID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: run %s not found in summary stream", ErrReadbackMismatch, summary.RunID)
		}
	}

	v.logger.Info("Readback verified",
		zap.String("run_id", summary.RunID.String()),
		zap.Int("sources", len(summary.Sources)),
	)
	return nil
}

func sameBuckets(want, got []models.MinuteBucket) error {
	if len(want) != len(got) {
		return fmt.Errorf("%d buckets, want %d", len(got), len(want))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.Day != g.Day || w.MinuteKey != g.MinuteKey || w.Samples != g.Samples {
			return fmt.Errorf("bucket %d is %s %s (%d samples), want %s %s (%d samples)",
				i, g.Day, g.MinuteKey, g.Samples, w.Day, w.MinuteKey, w.Samples)
		}
		if !sameAverage(w.AvgHeartRate, g.AvgHeartRate) || !sameAverage(w.AvgRespirationRate, g.AvgRespirationRate) {
			return fmt.Errorf("bucket %d (%s) averages differ", i, w.MinuteKey)
		}
	}
	return nil
}

func sameAverage(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= 1e-9
}
