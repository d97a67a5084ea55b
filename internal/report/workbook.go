// Package report 生成三种来源的对比工作簿
//
// 工作簿包含三个工作表：
// - Minutes: 对齐后的分钟轴，每个来源一列心率、一列呼吸率
// - Charts: 心率对比、呼吸率对比两张折线图（横轴为时间 HH:MM）
// - Coverage: 每个来源的总分钟数和可评估分钟数
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"vitals-compare/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	sheetMinutes  = "Minutes"
	sheetCharts   = "Charts"
	sheetCoverage = "Coverage"

	chartWidth  = 960
	chartHeight = 420
)

// Series 一个来源的分钟序列
type Series struct {
	Kind     models.SourceKind
	Label    string // 输入前缀，同一来源有多个输入时用于区分
	Buckets  []models.MinuteBucket
	Coverage models.Coverage
}

// Name 表头和图例中的名称，例如 "Dozee" 或 "Dozee (dozee-2)"
func (s Series) Name() string {
	if s.Label == "" || s.Label == s.Kind.String() {
		return s.Kind.DisplayName()
	}
	return fmt.Sprintf("%s (%s)", s.Kind.DisplayName(), s.Label)
}

// signal 图表中的一种体征
type signal struct {
	title  string
	axis   string
	header string
	value  func(b models.MinuteBucket) *float64
}

var signals = []signal{
	{
		title:  "Heart Rate Comparison",
		axis:   "Heart Rate",
		header: "Heart Rate",
		value:  func(b models.MinuteBucket) *float64 { return b.AvgHeartRate },
	},
	{
		title:  "Respiratory Rate Comparison",
		axis:   "Respiratory Rate",
		header: "Respiratory Rate",
		value:  func(b models.MinuteBucket) *float64 { return b.AvgRespirationRate },
	},
}

// WriteComparisonWorkbook 生成对比工作簿并写入 path（覆盖已有文件）
func WriteComparisonWorkbook(path string, series []Series) error {
	data, err := BuildComparisonWorkbook(series)
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", models.ErrFileAccess, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %w", models.ErrFileAccess, err)
	}
	return nil
}

// BuildComparisonWorkbook 生成对比工作簿（xlsx 字节）
func BuildComparisonWorkbook(series []Series) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetMinutes); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{sheetCharts, sheetCoverage} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	axis, keys := alignment(series)
	if err := writeMinutesSheet(f, axis, keys, series, headerStyle); err != nil {
		return nil, err
	}
	if len(axis) > 0 {
		if err := addCharts(f, len(axis), series); err != nil {
			return nil, err
		}
	}
	if err := writeCoverageSheet(f, series, headerStyle); err != nil {
		return nil, err
	}

	if idx, err := f.GetSheetIndex(sheetCharts); err == nil {
		f.SetActiveSheet(idx)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// MinutePoint 对齐后分钟轴上的一个点
type MinutePoint struct {
	Label     string // 分钟轴上的唯一标识
	MinuteKey string // 图表横轴显示的 HH:MM
	key       alignKey
}

// alignKey 排序用的位置：第几天 + 当天第几分钟
type alignKey struct {
	day    int
	offset int
}

func (k alignKey) less(o alignKey) bool {
	if k.day != o.day {
		return k.day < o.day
	}
	return k.offset < o.offset
}

// AlignMinutes 合并各来源的分钟，按时间先后排列
//
// 所有来源都带日期时按日期 + 时分对齐；只要有一个来源不带日期，
// 就只按时分对齐，跨天用各来源内部的第几天区分（带日期的来源按日期出现顺序，
// 不带日期的来源按跨午夜次数）。
func AlignMinutes(series []Series) []MinutePoint {
	axis, _ := alignment(series)
	return axis
}

// alignment 返回对齐后的分钟轴，以及每个来源每个分钟对应的位置
func alignment(series []Series) ([]MinutePoint, [][]alignKey) {
	dated := true
	for _, s := range series {
		for _, b := range s.Buckets {
			if b.Day == "" {
				dated = false
			}
		}
	}

	var dayIndex map[string]int
	if dated {
		dayIndex = sortedDays(series)
	}

	keys := make([][]alignKey, len(series))
	points := make(map[alignKey]MinutePoint)
	for i, s := range series {
		keys[i] = make([]alignKey, len(s.Buckets))
		seriesDays := make(map[string]int)
		day, prevOffset := 0, -1
		for j, b := range s.Buckets {
			offset := minuteOffset(b.MinuteKey)
			switch {
			case dated:
				day = dayIndex[b.Day]
			case b.Day != "":
				if _, ok := seriesDays[b.Day]; !ok {
					seriesDays[b.Day] = len(seriesDays)
				}
				day = seriesDays[b.Day]
			case prevOffset >= 0 && offset < prevOffset:
				day++
			}
			prevOffset = offset

			k := alignKey{day: day, offset: offset}
			keys[i][j] = k
			if _, ok := points[k]; !ok {
				label := b.MinuteKey
				switch {
				case dated:
					label = b.Label()
				case day > 0:
					label = fmt.Sprintf("day %d %s", day+1, b.MinuteKey)
				}
				points[k] = MinutePoint{Label: label, MinuteKey: b.MinuteKey, key: k}
			}
		}
	}

	axis := make([]MinutePoint, 0, len(points))
	for _, p := range points {
		axis = append(axis, p)
	}
	sort.Slice(axis, func(a, b int) bool { return axis[a].key.less(axis[b].key) })
	return axis, keys
}

// sortedDays 所有来源出现过的日期，按时间先后编号
func sortedDays(series []Series) map[string]int {
	seen := make(map[string]bool)
	var days []string
	for _, s := range series {
		for _, b := range s.Buckets {
			if !seen[b.Day] {
				seen[b.Day] = true
				days = append(days, b.Day)
			}
		}
	}
	sort.SliceStable(days, func(a, b int) bool {
		ta, okA := parseDay(days[a])
		tb, okB := parseDay(days[b])
		if okA && okB {
			return ta.Before(tb)
		}
		return days[a] < days[b]
	})

	index := make(map[string]int, len(days))
	for i, d := range days {
		index[d] = i
	}
	return index
}

func parseDay(day string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, day); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// minuteOffset "HH:MM" 转为当天第几分钟，无法解析时为 0
func minuteOffset(key string) int {
	hh, mm, ok := strings.Cut(key, ":")
	if !ok {
		return 0
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil {
		return 0
	}
	return h*60 + m
}

func writeMinutesSheet(f *excelize.File, axis []MinutePoint, keys [][]alignKey, series []Series, headerStyle int) error {
	header := []interface{}{"Time (HH:MM)"}
	for _, sig := range signals {
		for _, s := range series {
			header = append(header, fmt.Sprintf("%s %s", s.Name(), sig.header))
		}
	}
	if err := f.SetSheetRow(sheetMinutes, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(sheetMinutes, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	lookup := make([]map[alignKey]models.MinuteBucket, len(series))
	for i, s := range series {
		lookup[i] = make(map[alignKey]models.MinuteBucket, len(s.Buckets))
		for j, b := range s.Buckets {
			lookup[i][keys[i][j]] = b
		}
	}

	for r, point := range axis {
		row := []interface{}{point.MinuteKey}
		for _, sig := range signals {
			for i := range series {
				var v interface{}
				if b, ok := lookup[i][point.key]; ok {
					if val := sig.value(b); val != nil {
						v = *val
					}
				}
				row = append(row, v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetMinutes, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+2, err)
		}
	}

	if err := f.SetColWidth(sheetMinutes, "A", lastCol, 22); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	// 冻结表头
	return f.SetPanes(sheetMinutes, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func addCharts(f *excelize.File, points int, series []Series) error {
	lastRow := points + 1
	categories := fmt.Sprintf("%s!$A$2:$A$%d", sheetMinutes, lastRow)

	for si, sig := range signals {
		chartSeries := make([]excelize.ChartSeries, 0, len(series))
		for i := range series {
			col, err := excelize.ColumnNumberToName(2 + si*len(series) + i)
			if err != nil {
				return err
			}
			chartSeries = append(chartSeries, excelize.ChartSeries{
				Name:       fmt.Sprintf("%s!$%s$1", sheetMinutes, col),
				Categories: categories,
				Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", sheetMinutes, col, col, lastRow),
				Marker:     excelize.ChartMarker{Symbol: "none"},
				Line:       excelize.ChartLine{Width: 1.5},
			})
		}

		anchor := fmt.Sprintf("A%d", 1+si*24)
		if err := f.AddChart(sheetCharts, anchor, &excelize.Chart{
			Type:   excelize.Line,
			Series: chartSeries,
			Title:  []excelize.RichTextRun{{Text: sig.title}},
			XAxis: excelize.ChartAxis{
				Title: []excelize.RichTextRun{{Text: "Time (HH:MM)"}},
			},
			YAxis: excelize.ChartAxis{
				Title:          []excelize.RichTextRun{{Text: sig.axis}},
				MajorGridLines: true,
			},
			Legend:       excelize.ChartLegend{Position: "bottom"},
			ShowBlanksAs: "gap",
			Dimension:    excelize.ChartDimension{Width: chartWidth, Height: chartHeight},
		}); err != nil {
			return fmt.Errorf("failed to add chart %q: %w", sig.title, err)
		}
	}
	return nil
}

func writeCoverageSheet(f *excelize.File, series []Series, headerStyle int) error {
	header := []interface{}{"Source", "Minutes", "Evaluable Minutes", "Evaluable Ratio"}
	if err := f.SetSheetRow(sheetCoverage, "A1", &header); err != nil {
		return fmt.Errorf("failed to write coverage header: %w", err)
	}
	if err := f.SetCellStyle(sheetCoverage, "A1", "D1", headerStyle); err != nil {
		return fmt.Errorf("failed to set coverage header style: %w", err)
	}

	percent, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	if err != nil {
		return fmt.Errorf("failed to create percent style: %w", err)
	}

	for i, s := range series {
		row := []interface{}{
			s.Name(),
			s.Coverage.TotalMinutes,
			s.Coverage.EvaluableMinutes,
			s.Coverage.Ratio(),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheetCoverage, cell, &row); err != nil {
			return fmt.Errorf("failed to write coverage row: %w", err)
		}
		ratioCell := fmt.Sprintf("D%d", i+2)
		if err := f.SetCellStyle(sheetCoverage, ratioCell, ratioCell, percent); err != nil {
			return fmt.Errorf("failed to set coverage style: %w", err)
		}
	}

	return f.SetColWidth(sheetCoverage, "A", "D", 20)
}
