package aggregator

import (
	"testing"

	"vitals-compare/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateMinute(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		// 只有一个冒号时原样返回
		{"10:05", "10:05"},
		{"9:5", "9:5"},
		{"23:59", "23:59"},
		// 去掉秒
		{"10:05:33", "10:05"},
		{"10:05:33.250", "10:05"},
		{"7:01:02:03", "7:01"},
		// 去掉日期前缀；日期先剥离再按单冒号规则处理（见 DESIGN.md §3 第 5 条）
		{"2024-01-01 10:00:01", "10:00"},
		{"01/02/2024 22:15:30", "22:15"},
		{"2024-01-01 10:00", "10:00"},
		{"2024-01-01T10:00:01Z", "10:00"},
		{"  10:00:01  ", "10:00"},
	}
	for _, tt := range tests {
		got, err := TruncateMinute(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestTruncateMinute_Malformed(t *testing.T) {
	// "ab:cd" 虽然只有一个冒号，但时钟字段不是数字，同样拒绝
	for _, in := range []string{"", "1000", "2024-01-01", "ab:cd", "10:xx:00", "24:00:00", "10:60", "100:00", "-1:00", "2024-01-01 "} {
		_, err := TruncateMinute(in)
		assert.ErrorIs(t, err, models.ErrMalformedTimestamp, in)
	}
}
