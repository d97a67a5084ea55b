// Package publisher 把比对结果发布到下游（Redis Streams、Redis KV、MQTT）
//
// 发布失败只记录告警，不影响比对任务本身的结果。
package publisher

import (
	"context"

	"vitals-compare/internal/models"

	"go.uber.org/zap"
)

// Notifier 比对结果发布接口
type Notifier interface {
	Name() string
	Notify(ctx context.Context, summary *models.RunSummary) error
}

// Dispatcher 依次调用所有 Notifier
type Dispatcher struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(logger *zap.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, logger: logger}
}

// Len 已注册的 Notifier 数量
func (d *Dispatcher) Len() int {
	return len(d.notifiers)
}

// Notify 发布汇总，返回成功的 Notifier 数量
func (d *Dispatcher) Notify(ctx context.Context, summary *models.RunSummary) int {
	ok := 0
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			d.logger.Warn("Failed to publish run summary",
				zap.String("notifier", n.Name()),
				zap.String("run_id", summary.RunID.String()),
				zap.Error(err),
			)
			continue
		}
		ok++
		d.logger.Debug("Published run summary",
			zap.String("notifier", n.Name()),
			zap.String("run_id", summary.RunID.String()),
		)
	}
	return ok
}
