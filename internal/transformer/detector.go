package transformer

import (
	"fmt"
	"strings"

	"vitals-compare/internal/models"
)

// 来源标识中的标记子串（大小写敏感，按顺序匹配）
const (
	markerTelemetry  = "TELEMETRY"
	markerDozee      = "DOZEE"
	markerEarlySense = "ES"
)

// DetectSourceKind 根据来源标识（通常是文件名）推断来源
//
// 仅在调用方没有显式指定来源时使用；Select 本身只接受显式的 SourceKind。
// 匹配顺序为 TELEMETRY → DOZEE → ES，与导出文件的命名习惯一致。
func DetectSourceKind(identifier string) (models.SourceKind, error) {
	switch {
	case strings.Contains(identifier, markerTelemetry):
		return models.SourceTelemetry, nil
	case strings.Contains(identifier, markerDozee):
		return models.SourceDozee, nil
	case strings.Contains(identifier, markerEarlySense):
		return models.SourceEarlySense, nil
	default:
		return models.SourceUnknown, fmt.Errorf("%w: no source marker in %q", models.ErrSchemaMismatch, identifier)
	}
}
