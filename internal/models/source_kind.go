package models

import (
	"fmt"
	"strings"
)

// SourceKind 数据来源（监护设备/系统）
type SourceKind int

const (
	SourceUnknown SourceKind = iota
	SourceTelemetry
	SourceDozee
	SourceEarlySense
)

// ColumnSet 某一来源导出文件中需要保留的三列（原始列名）
type ColumnSet struct {
	Time            string
	HeartRate       string
	RespirationRate string
}

// Names 按 Time, HeartRate, RespirationRate 顺序返回列名
func (c ColumnSet) Names() []string {
	return []string{c.Time, c.HeartRate, c.RespirationRate}
}

var sourceColumns = map[SourceKind]ColumnSet{
	SourceTelemetry:  {Time: "Time", HeartRate: "ECG_HR", RespirationRate: "CO2_RR"},
	SourceDozee:      {Time: "Time", HeartRate: "Heart Rate", RespirationRate: "Breath Rate"},
	SourceEarlySense: {Time: "Clock", HeartRate: "Hr avg", RespirationRate: "Rr avg"},
}

var sourceNames = map[SourceKind]string{
	SourceTelemetry:  "telemetry",
	SourceDozee:      "dozee",
	SourceEarlySense: "earlysense",
}

var sourceDisplayNames = map[SourceKind]string{
	SourceTelemetry:  "Telemetry",
	SourceDozee:      "Dozee",
	SourceEarlySense: "EarlySense",
}

// AllSources 所有已知来源，顺序即报表中的列顺序
var AllSources = []SourceKind{SourceTelemetry, SourceEarlySense, SourceDozee}

func (k SourceKind) String() string {
	if n, ok := sourceNames[k]; ok {
		return n
	}
	return "unknown"
}

// DisplayName 图表图例中使用的名称
func (k SourceKind) DisplayName() string {
	if n, ok := sourceDisplayNames[k]; ok {
		return n
	}
	return "Unknown"
}

// Columns 返回该来源需要保留的原始列
func (k SourceKind) Columns() (ColumnSet, bool) {
	cs, ok := sourceColumns[k]
	return cs, ok
}

// Valid 是否为已知来源
func (k SourceKind) Valid() bool {
	_, ok := sourceColumns[k]
	return ok
}

// ParseSourceKind 解析显式配置的来源名称（大小写不敏感）
// 接受: telemetry, dozee, earlysense, es
func ParseSourceKind(name string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "telemetry", "tele":
		return SourceTelemetry, nil
	case "dozee":
		return SourceDozee, nil
	case "earlysense", "es":
		return SourceEarlySense, nil
	default:
		return SourceUnknown, fmt.Errorf("%w: unknown source kind %q", ErrSchemaMismatch, name)
	}
}

// MarshalText 实现 encoding.TextMarshaler，JSON/YAML 中以名称输出
func (k SourceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *SourceKind) UnmarshalText(text []byte) error {
	parsed, err := ParseSourceKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
