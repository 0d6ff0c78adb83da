package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/grana-app/grana_backend/internal/apperrors"
	"github.com/segmentio/kafka-go"
)

// Producer publishes sync and cache messages. A single writer serves every
// topic; the topic is set per message. Messages are keyed by entity (or user)
// so one entity's updates stay on one partition, in order.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(brokers []string, logger *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Compression:  kafka.Snappy,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
	}
	return &Producer{writer: writer, logger: logger}
}

// PublishSync publishes one entity snapshot to its sync topic.
func (p *Producer) PublishSync(ctx context.Context, msg SyncMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	topic, err := TopicForEntityType(msg.EntityType)
	if err != nil {
		return err
	}
	return p.publish(ctx, topic, msg.EntityID, msg)
}

// PublishCacheInvalidation publishes one cache command.
func (p *Producer) PublishCacheInvalidation(ctx context.Context, topic string, msg CacheInvalidationMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return p.publish(ctx, topic, msg.UserID, msg)
}

// PublishDashboardRefresh publishes one rebuilt dashboard payload.
func (p *Producer) PublishDashboardRefresh(ctx context.Context, msg DashboardRefreshMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return p.publish(ctx, TopicDashboardCacheRefresh, msg.UserID, msg)
}

func (p *Producer) publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewAppError(500, "failed to serialize message for topic "+topic, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return apperrors.NewAppError(500, "failed to publish to topic "+topic, err)
	}
	p.logger.Debug("published message",
		slog.String("topic", topic),
		slog.String("key", key),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
