package models

import (
	"time"

	"github.com/google/uuid"
)

// Coverage 可评估分钟统计
type Coverage struct {
	TotalMinutes     int `json:"total_minutes"`
	EvaluableMinutes int `json:"evaluable_minutes"`
}

// Ratio 可评估分钟占比，没有分钟时为 0
func (c Coverage) Ratio() float64 {
	if c.TotalMinutes == 0 {
		return 0
	}
	return float64(c.EvaluableMinutes) / float64(c.TotalMinutes)
}

// SourceResult 单个来源的处理结果
type SourceResult struct {
	Kind          SourceKind     `json:"source"`
	Label         string         `json:"label"`
	Location      string         `json:"location"`
	RawRows       int            `json:"raw_rows"`
	ReducedPath   string         `json:"reduced_path,omitempty"`
	MinutesPath   string         `json:"minutes_path,omitempty"`
	Coverage      Coverage       `json:"coverage"`
	CoverageRatio float64        `json:"coverage_ratio"`
	Buckets       []MinuteBucket `json:"-"`
}

// RunSummary 一次比对任务的汇总
type RunSummary struct {
	RunID        uuid.UUID      `json:"run_id"`
	Session      string         `json:"session"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	WorkbookPath string         `json:"workbook_path,omitempty"`
	Sources      []SourceResult `json:"sources"`
}

// Source 按来源查找结果
func (s *RunSummary) Source(kind SourceKind) (*SourceResult, bool) {
	for i := range s.Sources {
		if s.Sources[i].Kind == kind {
			return &s.Sources[i], true
		}
	}
	return nil, false
}
