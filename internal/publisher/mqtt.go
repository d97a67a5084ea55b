package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vitals-compare/internal/models"
)

// MQTTPublisher MQTT 发布端（common/mqtt.Client 实现了该接口）
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTNotifier 把汇总发布到 <prefix>/<session>/summary
type MQTTNotifier struct {
	client      MQTTPublisher
	topicPrefix string
	qos         byte
}

// NewMQTTNotifier 创建 MQTTNotifier
func NewMQTTNotifier(client MQTTPublisher, topicPrefix string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{
		client:      client,
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		qos:         qos,
	}
}

func (n *MQTTNotifier) Name() string {
	return "mqtt"
}

// Topic 某个会话的汇总 topic
func (n *MQTTNotifier) Topic(session string) string {
	return fmt.Sprintf("%s/%s/summary", n.topicPrefix, session)
}

// Notify 发布汇总（retained，新订阅者可以拿到最近一次结果）
func (n *MQTTNotifier) Notify(ctx context.Context, summary *models.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return n.client.Publish(n.Topic(summary.Session), n.qos, true, payload)
}
