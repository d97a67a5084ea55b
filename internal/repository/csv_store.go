package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vitals-compare/internal/models"

	"go.uber.org/zap"
)

// 输出文件表头
var (
	ReducedHeader = []string{"Time", "Heart Rate", "Respiration Rate"}
	MinutesHeader = []string{"Time", "Heart Rate", "Respiration Rate", "Samples", "Date"}
)

// CSVStore 把每个阶段的结果写成独立的 CSV 文件
//
// 列选择结果写入 <label>.reduced.csv，分钟聚合结果写入 <label>.minutes.csv；
// 重复运行时覆盖旧文件，写入先落到临时文件再重命名，不会留下半个文件。
type CSVStore struct {
	dir    string
	logger *zap.Logger
}

// NewCSVStore 创建文件存储
func NewCSVStore(dir string, logger *zap.Logger) *CSVStore {
	return &CSVStore{dir: dir, logger: logger}
}

// ReducedPath 列选择结果的文件路径
func (s *CSVStore) ReducedPath(label string) string {
	return filepath.Join(s.dir, label+".reduced.csv")
}

// MinutesPath 分钟聚合结果的文件路径
func (s *CSVStore) MinutesPath(label string) string {
	return filepath.Join(s.dir, label+".minutes.csv")
}

// WriteReduced 写入列选择结果
func (s *CSVStore) WriteReduced(label string, table *models.ReducedTable) (string, error) {
	rows := make([][]string, 0, len(table.Records)+1)
	rows = append(rows, ReducedHeader)
	for _, r := range table.Records {
		rows = append(rows, []string{r.Time, formatFloat(r.HeartRate), formatFloat(r.RespirationRate)})
	}

	path := s.ReducedPath(label)
	if err := s.writeAtomic(path, rows); err != nil {
		return "", err
	}
	s.logger.Debug("Wrote reduced table", zap.String("path", path), zap.Int("rows", len(table.Records)))
	return path, nil
}

// WriteMinutes 写入分钟聚合结果
func (s *CSVStore) WriteMinutes(label string, buckets []models.MinuteBucket) (string, error) {
	rows := make([][]string, 0, len(buckets)+1)
	rows = append(rows, MinutesHeader)
	for _, b := range buckets {
		rows = append(rows, []string{
			b.MinuteKey,
			formatFloat(b.AvgHeartRate),
			formatFloat(b.AvgRespirationRate),
			strconv.Itoa(b.Samples),
			b.Day,
		})
	}

	path := s.MinutesPath(label)
	if err := s.writeAtomic(path, rows); err != nil {
		return "", err
	}
	s.logger.Debug("Wrote minute buckets", zap.String("path", path), zap.Int("minutes", len(buckets)))
	return path, nil
}

// ReadReduced 读回列选择结果
func ReadReduced(path string, kind models.SourceKind) (*models.ReducedTable, error) {
	rows, err := readCSV(path, ReducedHeader)
	if err != nil {
		return nil, err
	}

	table := &models.ReducedTable{Kind: kind, Source: path, Records: make([]models.ReducedRecord, 0, len(rows))}
	for i, row := range rows {
		hr, err := parseFloat(row[1])
		if err != nil {
			return nil, models.NewPipelineError(models.StageLoad, path, i+1, err)
		}
		rr, err := parseFloat(row[2])
		if err != nil {
			return nil, models.NewPipelineError(models.StageLoad, path, i+1, err)
		}
		table.Records = append(table.Records, models.ReducedRecord{Time: row[0], HeartRate: hr, RespirationRate: rr})
	}
	return table, nil
}

// ReadMinutes 读回分钟聚合结果
func ReadMinutes(path string) ([]models.MinuteBucket, error) {
	rows, err := readCSV(path, MinutesHeader)
	if err != nil {
		return nil, err
	}

	buckets := make([]models.MinuteBucket, 0, len(rows))
	for i, row := range rows {
		b := models.MinuteBucket{MinuteKey: row[0], Day: row[4]}
		if b.AvgHeartRate, err = parseFloat(row[1]); err != nil {
			return nil, models.NewPipelineError(models.StageLoad, path, i+1, err)
		}
		if b.AvgRespirationRate, err = parseFloat(row[2]); err != nil {
			return nil, models.NewPipelineError(models.StageLoad, path, i+1, err)
		}
		if b.Samples, err = strconv.Atoi(row[3]); err != nil {
			return nil, models.NewPipelineError(models.StageLoad, path, i+1, fmt.Errorf("%w: samples %q", models.ErrMalformedValue, row[3]))
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

func (s *CSVStore) writeAtomic(path string, rows [][]string) (err error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return models.NewPipelineError(models.StagePersist, path, 0, fmt.Errorf("%w: %w", models.ErrFileAccess, err))
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return models.NewPipelineError(models.StagePersist, path, 0, fmt.Errorf("%w: %w", models.ErrFileAccess, err))
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err = w.WriteAll(rows); err != nil {
		return models.NewPipelineError(models.StagePersist, path, 0, fmt.Errorf("%w: %w", models.ErrFileAccess, err))
	}
	if err = tmp.Close(); err != nil {
		return models.NewPipelineError(models.StagePersist, path, 0, fmt.Errorf("%w: %w", models.ErrFileAccess, err))
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return models.NewPipelineError(models.StagePersist, path, 0, fmt.Errorf("%w: %w", models.ErrFileAccess, err))
	}
	return nil
}

// readCSV 读取文件并校验表头，返回数据行
func readCSV(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewPipelineError(models.StageLoad, path, 0, fmt.Errorf("%w: %w", models.ErrFileAccess, err))
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	got, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, models.NewPipelineError(models.StageLoad, path, 0, fmt.Errorf("%w: file has no header row", models.ErrSchemaMismatch))
		}
		return nil, models.NewPipelineError(models.StageLoad, path, 0, fmt.Errorf("%w: %v", models.ErrSchemaMismatch, err))
	}
	if strings.Join(got, ",") != strings.Join(header, ",") {
		return nil, models.NewPipelineError(models.StageLoad, path, 0,
			fmt.Errorf("%w: header %v, want %v", models.ErrSchemaMismatch, got, header))
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, models.NewPipelineError(models.StageLoad, path, 0, fmt.Errorf("%w: %v", models.ErrSchemaMismatch, err))
	}
	return rows, nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", models.ErrMalformedValue, s)
	}
	return &v, nil
}
