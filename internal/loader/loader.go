// Package loader 读取监护设备导出的 CSV 文件
//
// 支持本地路径和 http(s) URL；整个文件一次读入内存。
package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"vitals-compare/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Loader 导出文件加载器
type Loader struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewLoader 创建加载器
// timeout: 远程下载超时；数据错误不是瞬时故障，因此不做重试
func NewLoader(timeout time.Duration, logger *zap.Logger) *Loader {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "text/csv, text/plain, */*")

	return &Loader{
		httpClient: client,
		logger:     logger,
	}
}

// IsRemote 是否为 http(s) 地址
func IsRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Load 读取并解析导出文件
func (l *Loader) Load(ctx context.Context, location string) (*models.RawTable, error) {
	var (
		data []byte
		err  error
	)
	if IsRemote(location) {
		data, err = l.fetch(ctx, location)
	} else {
		data, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, models.NewPipelineError(models.StageLoad, location, 0, fmt.Errorf("%w: %w", models.ErrFileAccess, err))
	}

	l.logger.Info("Loaded source export",
		zap.String("location", location),
		zap.String("size", humanize.Bytes(uint64(len(data)))),
	)

	table, err := ParseCSV(bytes.NewReader(data), location)
	if err != nil {
		return nil, err
	}
	return table, nil
}

// fetch 通过 HTTP 下载导出文件
func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := l.httpClient.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to download %s: unexpected status %s", url, resp.Status())
	}
	return resp.Body(), nil
}

// ParseCSV 解析带表头的 CSV
//
// 允许行长度不一致（缺失的尾部单元格按空处理），完全空白的行会被跳过。
func ParseCSV(r io.Reader, source string) (*models.RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, models.NewPipelineError(models.StageLoad, source, 0, fmt.Errorf("%w: %w", models.ErrFileAccess, err))
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, models.NewPipelineError(models.StageLoad, source, 0,
				fmt.Errorf("%w: file has no header row", models.ErrSchemaMismatch))
		}
		return nil, models.NewPipelineError(models.StageLoad, source, 0,
			fmt.Errorf("%w: read header: %v", models.ErrSchemaMismatch, err))
	}

	table := &models.RawTable{Source: source, Header: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.NewPipelineError(models.StageLoad, source, len(table.Rows)+1,
				fmt.Errorf("%w: %v", models.ErrSchemaMismatch, err))
		}
		if blankRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
