package aggregator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vitals-compare/internal/models"
)

// dayLayouts 可比较先后的日期前缀格式（年在前，不存在日/月歧义）
var dayLayouts = []string{"2006-01-02", "2006/01/02"}

// clockMinute 截断到分钟后的时间戳
type clockMinute struct {
	day    string // 日期前缀，可能为空
	key    string // "HH:MM"
	offset int    // 当天第几分钟，用于顺序检查
}

// TruncateMinute 把时间戳截断到 "时:分"
//
// 先去掉第一个空格之前的日期前缀（或 ISO 格式中 'T' 之前的日期），
// 若只剩一个冒号则原样返回，否则只保留前两段（丢弃秒及更细的部分）。
//
//	"2024-01-01 10:00:01"     -> "10:00"
//	"10:00:01.250"            -> "10:00"
//	"10:00"                   -> "10:00"
func TruncateMinute(ts string) (string, error) {
	m, err := parseClockMinute(ts)
	if err != nil {
		return "", err
	}
	return m.key, nil
}

func parseClockMinute(ts string) (clockMinute, error) {
	day, clock := splitDate(strings.TrimSpace(ts))

	var key string
	switch strings.Count(clock, ":") {
	case 0:
		return clockMinute{}, fmt.Errorf("%w: %q", models.ErrMalformedTimestamp, ts)
	case 1:
		key = clock
	default:
		parts := strings.SplitN(clock, ":", 3)
		key = parts[0] + ":" + parts[1]
	}

	hh, mm, _ := strings.Cut(key, ":")
	hour, okH := parseClockField(hh, 23)
	minute, okM := parseClockField(mm, 59)
	if !okH || !okM {
		return clockMinute{}, fmt.Errorf("%w: %q", models.ErrMalformedTimestamp, ts)
	}

	return clockMinute{day: day, key: key, offset: hour*60 + minute}, nil
}

// splitDate 拆分日期前缀和时钟部分
func splitDate(ts string) (day, clock string) {
	if i := strings.IndexByte(ts, ' '); i >= 0 {
		return ts[:i], strings.TrimSpace(ts[i+1:])
	}
	if i := strings.IndexByte(ts, 'T'); i > 0 && strings.Contains(ts[:i], "-") {
		return ts[:i], ts[i+1:]
	}
	return "", ts
}

// parseClockField 解析 1~2 位的时/分字段
func parseClockField(s string, limit int) (int, bool) {
	if len(s) == 0 || len(s) > 2 || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v > limit {
		return 0, false
	}
	return v, true
}

// parseDay 解析日期前缀，无法确定格式时返回 false
func parseDay(day string) (time.Time, bool) {
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, day); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
