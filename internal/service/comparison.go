// Package service 串联一次三方比对：读取 → 列选择 → 分钟聚合 → 输出与发布
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vitals-compare/internal/aggregator"
	"vitals-compare/internal/config"
	"vitals-compare/internal/coverage"
	"vitals-compare/internal/models"
	"vitals-compare/internal/publisher"
	"vitals-compare/internal/report"
	"vitals-compare/internal/repository"
	"vitals-compare/internal/transformer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source 一个已确定来源类型的输入
type Source struct {
	Kind     models.SourceKind
	Location string
	Label    string
}

// SourceLoader 读取原始导出文件（loader.Loader 实现了该接口）
type SourceLoader interface {
	Load(ctx context.Context, location string) (*models.RawTable, error)
}

// BucketStore 分钟数据持久化（repository.MinuteBucketRepository 实现了该接口）
type BucketStore interface {
	ReplaceSource(ctx context.Context, runID uuid.UUID, session, label string, kind models.SourceKind, buckets []models.MinuteBucket) error
}

// ComparisonService 比对服务
type ComparisonService struct {
	session    string
	workbook   string
	loader     SourceLoader
	selector   *transformer.ColumnSelector
	aggregator *aggregator.MinuteAggregator
	store      *repository.CSVStore
	buckets    BucketStore          // 可选
	dispatcher *publisher.Dispatcher // 可选
	logger     *zap.Logger
}

// NewComparisonService 创建比对服务
// bucketStore、dispatcher 可以为 nil；workbook 为空时不生成对比工作簿
func NewComparisonService(
	session string,
	workbook string,
	loader SourceLoader,
	store *repository.CSVStore,
	bucketStore BucketStore,
	dispatcher *publisher.Dispatcher,
	logger *zap.Logger,
) *ComparisonService {
	return &ComparisonService{
		session:    session,
		workbook:   workbook,
		loader:     loader,
		selector:   transformer.NewColumnSelector(logger),
		aggregator: aggregator.NewMinuteAggregator(logger),
		store:      store,
		buckets:    bucketStore,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ResolveSources 确定每个输入的来源类型和输出前缀
//
// 未指定 kind 时按文件名中的标记识别；前缀已被占用时追加序号直到不重复。
func ResolveSources(inputs []config.InputSpec) ([]Source, error) {
	sources := make([]Source, 0, len(inputs))
	used := make(map[string]bool)

	for _, in := range inputs {
		location := strings.TrimSpace(in.Location)
		if location == "" {
			return nil, fmt.Errorf("input has no location")
		}

		var (
			kind models.SourceKind
			err  error
		)
		if in.Kind != "" {
			kind, err = models.ParseSourceKind(in.Kind)
		} else {
			kind, err = transformer.DetectSourceKind(filepath.Base(location))
		}
		if err != nil {
			return nil, models.NewPipelineError(models.StageSelect, location, 0, err)
		}

		base := strings.TrimSpace(in.Label)
		if base == "" {
			base = kind.String()
		}
		if err := config.ValidateLabel(base); err != nil {
			return nil, err
		}
		label := base
		for n := 2; used[label]; n++ {
			label = base + "-" + strconv.Itoa(n)
		}
		used[label] = true

		sources = append(sources, Source{Kind: kind, Location: location, Label: label})
	}
	return sources, nil
}

// Run 依次处理每个来源
//
// 任何数据错误都会立即终止本次任务（返回 *models.PipelineError），
// 已完成来源的产物保留，失败来源不会写出分钟文件。
// 发布失败只记录告警。
func (s *ComparisonService) Run(ctx context.Context, sources []Source) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:     uuid.New(),
		Session:   s.session,
		StartedAt: time.Now().UTC(),
		Sources:   make([]models.SourceResult, 0, len(sources)),
	}

	s.logger.Info("Starting comparison run",
		zap.String("run_id", summary.RunID.String()),
		zap.String("session", s.session),
		zap.Int("sources", len(sources)),
	)

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := s.processSource(ctx, summary.RunID, src)
		if err != nil {
			s.logger.Error("Comparison run aborted",
				zap.String("run_id", summary.RunID.String()),
				zap.String("source", src.Location),
				zap.Error(err),
			)
			return summary, err
		}
		summary.Sources = append(summary.Sources, *result)
	}

	if s.workbook != "" {
		if err := s.writeWorkbook(summary); err != nil {
			return summary, err
		}
		summary.WorkbookPath = s.workbook
	}

	summary.FinishedAt = time.Now().UTC()

	if s.dispatcher != nil && s.dispatcher.Len() > 0 {
		s.dispatcher.Notify(ctx, summary)
	}

	s.logger.Info("Comparison run finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

func (s *ComparisonService) processSource(ctx context.Context, runID uuid.UUID, src Source) (*models.SourceResult, error) {
	raw, err := s.loader.Load(ctx, src.Location)
	if err != nil {
		return nil, err
	}

	reduced, err := s.selector.Select(raw, src.Kind)
	if err != nil {
		return nil, err
	}

	reducedPath, err := s.store.WriteReduced(src.Label, reduced)
	if err != nil {
		return nil, err
	}

	buckets, err := s.aggregator.Aggregate(reduced)
	if err != nil {
		return nil, err
	}

	minutesPath, err := s.store.WriteMinutes(src.Label, buckets)
	if err != nil {
		return nil, err
	}

	if s.buckets != nil {
		if err := s.buckets.ReplaceSource(ctx, runID, s.session, src.Label, src.Kind, buckets); err != nil {
			return nil, models.NewPipelineError(models.StagePersist, src.Location, 0, err)
		}
	}

	cov := coverage.Summarize(buckets)
	s.logger.Info("Processed source",
		zap.String("source", src.Kind.String()),
		zap.String("label", src.Label),
		zap.String("location", src.Location),
		zap.Int("rows", len(raw.Rows)),
		zap.Int("evaluable_samples", coverage.CountEvaluableRecords(reduced)),
		zap.Int("minutes", cov.TotalMinutes),
		zap.Int("evaluable_minutes", cov.EvaluableMinutes),
	)

	return &models.SourceResult{
		Kind:          src.Kind,
		Label:         src.Label,
		Location:      src.Location,
		RawRows:       len(raw.Rows),
		ReducedPath:   reducedPath,
		MinutesPath:   minutesPath,
		Coverage:      cov,
		CoverageRatio: cov.Ratio(),
		Buckets:       buckets,
	}, nil
}

func (s *ComparisonService) writeWorkbook(summary *models.RunSummary) error {
	series := make([]report.Series, 0, len(summary.Sources))
	for _, src := range summary.Sources {
		series = append(series, report.Series{
			Kind:     src.Kind,
			Label:    src.Label,
			Buckets:  src.Buckets,
			Coverage: src.Coverage,
		})
	}
	if err := report.WriteComparisonWorkbook(s.workbook, series); err != nil {
		return models.NewPipelineError(models.StageReport, s.workbook, 0, err)
	}
	s.logger.Info("Wrote comparison workbook", zap.String("path", s.workbook))
	return nil
}
