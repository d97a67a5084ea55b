package models

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch 来源无法识别或缺少必需列
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrEmptyBucket 对没有样本的分钟求平均
	ErrEmptyBucket = errors.New("empty minute bucket")
	// ErrMalformedTimestamp 时间戳不是 [日期] HH:MM[:SS...] 形式
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	// ErrMalformedValue 数值列无法解析
	ErrMalformedValue = errors.New("malformed value")
	// ErrUnsortedInput 同一分钟的行不连续，或时间倒序
	ErrUnsortedInput = errors.New("unsorted input")
	// ErrFileAccess 读写文件（或远程获取）失败
	ErrFileAccess = errors.New("file access error")
)

// 流水线阶段名称
const (
	StageLoad      = "load"
	StageSelect    = "select"
	StageAggregate = "aggregate"
	StagePersist   = "persist"
	StageReport    = "report"
)

// PipelineError 带阶段、来源和记录位置的错误
// Record 为数据行号（从 1 开始，不含表头），0 表示与具体行无关
type PipelineError struct {
	Stage  string
	Source string
	Record int
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Record > 0 {
		return fmt.Sprintf("%s %s: record %d: %v", e.Stage, e.Source, e.Record, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Source, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError 创建流水线错误
func NewPipelineError(stage, source string, record int, err error) *PipelineError {
	return &PipelineError{Stage: stage, Source: source, Record: record, Err: err}
}
