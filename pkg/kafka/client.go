// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"healthguide-go/internal/config"
	"healthguide-go/pkg/log"
	"healthguide-go/pkg/tasks"
)

// maxAttempts 是同一会话结果处理失败后允许的最大重试次数。
const maxAttempts = 3

// TaskProcessor 处理一条会话结果任务，使消费者与具体的处理流水线解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ConversationOutcomeTask) error
}

var producer *kafka.Writer

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:         kafka.TCP(brokerList(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者，刷出尚未发送的消息。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// OutcomePublisher 把会话结果发送到 Kafka。
type OutcomePublisher struct{}

// Publish 发送一条会话结果任务，以会话 ID 作为消息 key，保证同一会话落在同一分区。
func (OutcomePublisher) Publish(ctx context.Context, task tasks.ConversationOutcomeTask) error {
	return ProduceOutcomeTask(ctx, task)
}

// ProduceOutcomeTask 发送一个会话结果任务到 Kafka。
func ProduceOutcomeTask(ctx context.Context, task tasks.ConversationOutcomeTask) error {
	if producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.ConversationID),
		Value: taskBytes,
	})
}

// StartConsumer 启动 Kafka 消费者处理会话结果，ctx 取消时退出。
// attempts 用于记录失败次数，达到阈值后提交 offset 终止重试。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, attempts *redis.Client) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		if handleMessage(ctx, m.Value, processor, attempts) {
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// handleMessage 处理单条消息，返回是否应提交 offset。
func handleMessage(ctx context.Context, value []byte, processor TaskProcessor, attempts *redis.Client) bool {
	var task tasks.ConversationOutcomeTask
	if err := json.Unmarshal(value, &task); err != nil || task.ConversationID == "" {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		// 消息格式错误，直接提交，避免阻塞队列
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.ConversationID)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理会话结果失败: conversationID=%s, Error: %v", task.ConversationID, err)
		if attempts == nil {
			return false
		}
		n, incErr := attempts.Incr(ctx, attemptsKey).Result()
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		_ = attempts.Expire(ctx, attemptsKey, 24*time.Hour).Err()
		if n >= maxAttempts {
			log.Errorf("会话结果多次处理失败(>=%d)，提交 offset 终止重试: conversationID=%s", maxAttempts, task.ConversationID)
			return true
		}
		return false
	}

	log.Infof("会话结果处理成功: conversationID=%s", task.ConversationID)
	if attempts != nil {
		_ = attempts.Del(ctx, attemptsKey).Err()
	}
	return true
}
