// Package kafka 提供了把上传生命周期事件发布到 Kafka 的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"legal-assistant-go/internal/config"
	"legal-assistant-go/internal/model"
	"legal-assistant-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// messageWriter 是 kafka.Writer 中被使用到的部分，便于测试替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 把 UploadEvent 序列化为 JSON 写入配置的主题，消息 key 为任务 ID。
type Producer struct {
	writer messageWriter
}

// NewProducer 初始化 Kafka 生产者。未配置 brokers 时返回 nil。
func NewProducer(cfg config.KafkaConfig) *Producer {
	if strings.TrimSpace(cfg.Brokers) == "" {
		log.Info("未配置 Kafka brokers，上传事件不会被发布")
		return nil
	}
	brokers := strings.Split(cfg.Brokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
		// 异步写入：模拟器的 tick 不能被 broker 延迟阻塞
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorw("发布上传事件失败", "count", len(messages), "error", err)
			}
		},
	}
	log.Infof("Kafka 生产者初始化成功, topic=%s", cfg.Topic)
	return &Producer{writer: w}
}

// PublishUploadEvent 发送一个上传事件。
func (p *Producer) PublishUploadEvent(ctx context.Context, event model.UploadEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal upload event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TaskID),
		Value: value,
	})
}

// Close 刷新并关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}
