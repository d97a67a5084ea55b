package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	rediscommon "vitals-compare/common/redis"
	"vitals-compare/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultStreamMaxLen 汇总流保留的近似长度
const DefaultStreamMaxLen = 1000

// StreamNotifier 把汇总以 JSON 写入 Redis Streams
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamNotifier 创建 StreamNotifier
func NewStreamNotifier(client *redis.Client, stream string) *StreamNotifier {
	return &StreamNotifier{
		client: client,
		stream: stream,
		maxLen: DefaultStreamMaxLen,
	}
}

func (n *StreamNotifier) Name() string {
	return "redis-stream"
}

// Notify XADD 汇总消息
func (n *StreamNotifier) Notify(ctx context.Context, summary *models.RunSummary) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, n.client, n.stream, summary, n.maxLen); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", n.stream, err)
	}
	return nil
}

// Contains 流中是否已有该 run 的汇总消息
func (n *StreamNotifier) Contains(ctx context.Context, runID uuid.UUID) (bool, error) {
	msgs, err := rediscommon.ReadRange(ctx, n.client, n.stream, "-", "+")
	if err != nil {
		return false, fmt.Errorf("failed to read stream %s: %w", n.stream, err)
	}
	for _, msg := range msgs {
		raw, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var head struct {
			RunID uuid.UUID `json:"run_id"`
		}
		if err := json.Unmarshal([]byte(raw), &head); err != nil {
			continue
		}
		if head.RunID == runID {
			return true, nil
		}
	}
	return false, nil
}
