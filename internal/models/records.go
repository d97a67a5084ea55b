package models

// RawTable 原始导出文件（表头 + 数据行），读取后不再修改
type RawTable struct {
	Source string // 来源标识（文件路径或 URL）
	Header []string
	Rows   [][]string
}

// ReducedRecord 列选择后的一行：时间 + 心率 + 呼吸率
// 数值缺失（空单元格、NaN 等）时为 nil
type ReducedRecord struct {
	Time            string
	HeartRate       *float64
	RespirationRate *float64
}

// Evaluable 心率和呼吸率都存在且非零
func (r ReducedRecord) Evaluable() bool {
	return nonZero(r.HeartRate) && nonZero(r.RespirationRate)
}

// ReducedTable 列选择阶段的输出
type ReducedTable struct {
	Kind    SourceKind
	Source  string
	Records []ReducedRecord
}

// MinuteBucket 每分钟一行的聚合结果
type MinuteBucket struct {
	Day                string // 时间戳中的日期前缀，没有则为空
	MinuteKey          string // "HH:MM"
	AvgHeartRate       *float64
	AvgRespirationRate *float64
	Samples            int
}

// Evaluable 该分钟的两个平均值都存在且非零
func (b MinuteBucket) Evaluable() bool {
	return nonZero(b.AvgHeartRate) && nonZero(b.AvgRespirationRate)
}

// Label 带日期的分钟标识，用于跨来源对齐
func (b MinuteBucket) Label() string {
	if b.Day == "" {
		return b.MinuteKey
	}
	return b.Day + " " + b.MinuteKey
}

func nonZero(v *float64) bool {
	return v != nil && *v != 0
}

// Float 返回指向 v 的指针
func Float(v float64) *float64 {
	return &v
}
