// Package transformer 提供列选择功能
//
// 将三种监护来源（Telemetry、Dozee、EarlySense）的原始导出表转换为统一格式：
// - 只保留时间、心率、呼吸率三列
// - 重命名为统一的 Time / HeartRate / RespirationRate
// - 数值解析，无效占位值视为缺失
package transformer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"vitals-compare/internal/models"

	"go.uber.org/zap"
)

// missingMarkers 导出文件中表示"无数据"的占位值
var missingMarkers = map[string]struct{}{
	"":    {},
	"nan": {},
	"na":  {},
	"n/a": {},
	"-":   {},
	"--":  {},
}

// ColumnSelector 列选择器
type ColumnSelector struct {
	logger *zap.Logger
}

// NewColumnSelector 创建列选择器
func NewColumnSelector(logger *zap.Logger) *ColumnSelector {
	return &ColumnSelector{logger: logger}
}

// Select 按来源的固定列集合提取三列，输出行数与顺序与输入一致
//
// 错误:
//   - models.ErrSchemaMismatch: 来源未知或缺少必需列
//   - models.ErrMalformedValue: 数值列包含无法解析的内容
//
// 返回的错误均为 *models.PipelineError，Record 指向出错的数据行（从 1 开始）。
func (s *ColumnSelector) Select(raw *models.RawTable, kind models.SourceKind) (*models.ReducedTable, error) {
	columns, ok := kind.Columns()
	if !ok {
		return nil, models.NewPipelineError(models.StageSelect, raw.Source, 0,
			fmt.Errorf("%w: unknown source kind %d", models.ErrSchemaMismatch, kind))
	}

	index, err := locateColumns(raw.Header, columns)
	if err != nil {
		return nil, models.NewPipelineError(models.StageSelect, raw.Source, 0, err)
	}

	records := make([]models.ReducedRecord, 0, len(raw.Rows))
	for i, row := range raw.Rows {
		rec := models.ReducedRecord{Time: strings.TrimSpace(cell(row, index[0]))}

		if rec.HeartRate, err = parseSignal(cell(row, index[1])); err != nil {
			return nil, models.NewPipelineError(models.StageSelect, raw.Source, i+1,
				fmt.Errorf("column %q: %w", columns.HeartRate, err))
		}
		if rec.RespirationRate, err = parseSignal(cell(row, index[2])); err != nil {
			return nil, models.NewPipelineError(models.StageSelect, raw.Source, i+1,
				fmt.Errorf("column %q: %w", columns.RespirationRate, err))
		}

		records = append(records, rec)
	}

	s.logger.Debug("Selected source columns",
		zap.String("source", raw.Source),
		zap.String("kind", kind.String()),
		zap.Strings("columns", columns.Names()),
		zap.Int("rows", len(records)),
	)

	return &models.ReducedTable{
		Kind:    kind,
		Source:  raw.Source,
		Records: records,
	}, nil
}

// locateColumns 返回 Time / HeartRate / RespirationRate 在表头中的下标
func locateColumns(header []string, columns models.ColumnSet) ([3]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	var index [3]int
	for i, name := range columns.Names() {
		pos, ok := positions[name]
		if !ok {
			return index, fmt.Errorf("%w: missing column %q", models.ErrSchemaMismatch, name)
		}
		index[i] = pos
	}
	return index, nil
}

// normalizeHeader 去掉 UTF-8 BOM 和首尾空白
func normalizeHeader(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
}

// cell 取单元格，行尾缺失的单元格视为空
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// parseSignal 解析数值，占位值返回 nil
func parseSignal(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if _, missing := missingMarkers[strings.ToLower(s)]; missing {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %q", models.ErrMalformedValue, s)
	}
	return &v, nil
}
