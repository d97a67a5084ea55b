// Package coverage 统计可评估的分钟数
//
// 可评估：该分钟的平均心率和平均呼吸率都存在且非零。
package coverage

import "vitals-compare/internal/models"

// CountEvaluable 统计可评估的分钟数
func CountEvaluable(buckets []models.MinuteBucket) int {
	n := 0
	for _, b := range buckets {
		if b.Evaluable() {
			n++
		}
	}
	return n
}

// CountEvaluableRecords 对未聚合的记录应用同一判定
//
// 计数单位是样本行而不是分钟，结果与 CountEvaluable 不可直接比较。
func CountEvaluableRecords(table *models.ReducedTable) int {
	n := 0
	for _, r := range table.Records {
		if r.Evaluable() {
			n++
		}
	}
	return n
}

// Summarize 返回总分钟数和可评估分钟数
func Summarize(buckets []models.MinuteBucket) models.Coverage {
	return models.Coverage{
		TotalMinutes:     len(buckets),
		EvaluableMinutes: CountEvaluable(buckets),
	}
}
