// Package aggregator 把秒级生命体征样本聚合为每分钟一条
//
// 输入必须按时间非递减排列；同一分钟的样本必须连续出现。
// 违反时返回 models.ErrUnsortedInput，而不是静默地产生错误的分钟边界。
package aggregator

import (
	"fmt"
	"strconv"

	"vitals-compare/internal/models"

	"go.uber.org/zap"
)

// 无日期前缀时，判定为跨午夜的窗口（前一分钟在 23 点之后、当前分钟在 1 点之前）
const (
	lateNightOffset   = 23 * 60
	earlyMorningLimit = 60
)

// MinuteAggregator 分钟聚合器
type MinuteAggregator struct {
	logger *zap.Logger
}

// NewMinuteAggregator 创建分钟聚合器
func NewMinuteAggregator(logger *zap.Logger) *MinuteAggregator {
	return &MinuteAggregator{logger: logger}
}

// minuteGroup 正在累加的一分钟
type minuteGroup struct {
	minute      clockMinute
	identity    string
	firstRecord int
	hrSum       float64
	hrCount     int
	rrSum       float64
	rrCount     int
	samples     int
}

func (g *minuteGroup) add(rec models.ReducedRecord) {
	g.samples++
	if rec.HeartRate != nil {
		g.hrSum += *rec.HeartRate
		g.hrCount++
	}
	if rec.RespirationRate != nil {
		g.rrSum += *rec.RespirationRate
		g.rrCount++
	}
}

// close 结束该分钟并计算平均值；缺失的样本不参与对应信号的平均
func (g *minuteGroup) close() (models.MinuteBucket, error) {
	if g.samples == 0 {
		return models.MinuteBucket{}, fmt.Errorf("%w: minute %s", models.ErrEmptyBucket, g.minute.key)
	}

	bucket := models.MinuteBucket{
		Day:       g.minute.day,
		MinuteKey: g.minute.key,
		Samples:   g.samples,
	}
	if g.hrCount > 0 {
		bucket.AvgHeartRate = models.Float(g.hrSum / float64(g.hrCount))
	}
	if g.rrCount > 0 {
		bucket.AvgRespirationRate = models.Float(g.rrSum / float64(g.rrCount))
	}
	return bucket, nil
}

// Aggregate 按分钟聚合，每个分钟在其分组结束时输出一次
//
// 返回的分钟序列保持时间顺序，MinuteKey（连同日期）唯一。
// 错误均为 *models.PipelineError:
//   - models.ErrMalformedTimestamp: 时间戳无法解析
//   - models.ErrUnsortedInput: 分钟重复出现或时间倒序
//   - models.ErrEmptyBucket: 分组没有任何样本
func (a *MinuteAggregator) Aggregate(table *models.ReducedTable) ([]models.MinuteBucket, error) {
	buckets := make([]models.MinuteBucket, 0)
	seen := make(map[string]int)
	rollovers := 0

	var current *minuteGroup
	for i, rec := range table.Records {
		record := i + 1
		minute, err := parseClockMinute(rec.Time)
		if err != nil {
			return nil, models.NewPipelineError(models.StageAggregate, table.Source, record, err)
		}

		if current != nil && minute.day == current.minute.day && minute.key == current.minute.key {
			current.add(rec)
			continue
		}

		if current != nil {
			if minute.day == "" && current.minute.day == "" && minute.offset < current.minute.offset {
				// 无日期时只允许跨午夜的回绕
				if current.minute.offset < lateNightOffset || minute.offset >= earlyMorningLimit {
					return nil, models.NewPipelineError(models.StageAggregate, table.Source, record,
						fmt.Errorf("%w: %s after %s", models.ErrUnsortedInput, minute.key, current.minute.key))
				}
				rollovers++
			} else if before(minute, current.minute) {
				return nil, models.NewPipelineError(models.StageAggregate, table.Source, record,
					fmt.Errorf("%w: %s after %s", models.ErrUnsortedInput, minute.label(), current.minute.label()))
			}

			bucket, err := current.close()
			if err != nil {
				return nil, models.NewPipelineError(models.StageAggregate, table.Source, current.firstRecord, err)
			}
			buckets = append(buckets, bucket)
			a.logBucket(table, bucket)
		}

		identity := minute.identity(rollovers)
		if first, dup := seen[identity]; dup {
			return nil, models.NewPipelineError(models.StageAggregate, table.Source, record,
				fmt.Errorf("%w: minute %s already closed (first seen at record %d)", models.ErrUnsortedInput, minute.label(), first))
		}
		seen[identity] = record

		current = &minuteGroup{minute: minute, identity: identity, firstRecord: record}
		current.add(rec)
	}

	if current != nil {
		bucket, err := current.close()
		if err != nil {
			return nil, models.NewPipelineError(models.StageAggregate, table.Source, current.firstRecord, err)
		}
		buckets = append(buckets, bucket)
		a.logBucket(table, bucket)
	}

	a.logger.Info("Aggregated samples into minutes",
		zap.String("source", table.Source),
		zap.String("kind", table.Kind.String()),
		zap.Int("samples", len(table.Records)),
		zap.Int("minutes", len(buckets)),
	)

	return buckets, nil
}

func (a *MinuteAggregator) logBucket(table *models.ReducedTable, b models.MinuteBucket) {
	if ce := a.logger.Check(zap.DebugLevel, "Closed minute bucket"); ce != nil {
		ce.Write(
			zap.String("source", table.Source),
			zap.String("minute", b.Label()),
			zap.Int("samples", b.Samples),
			zap.Bool("evaluable", b.Evaluable()),
		)
	}
}

// label 日志和错误中使用的分钟标识
func (m clockMinute) label() string {
	if m.day == "" {
		return m.key
	}
	return m.day + " " + m.key
}

// identity 分组唯一标识；无日期时用跨午夜次数区分不同的天
func (m clockMinute) identity(rollovers int) string {
	if m.day != "" {
		return m.day + " " + m.key
	}
	return strconv.Itoa(rollovers) + " " + m.key
}

// before 判断 a 是否早于 b（仅在能确定先后时返回 true）
func before(a, b clockMinute) bool {
	if a.day == "" || b.day == "" {
		return false
	}
	if a.day == b.day {
		return a.offset < b.offset
	}
	da, okA := parseDay(a.day)
	db, okB := parseDay(b.day)
	return okA && okB && da.Before(db)
}
