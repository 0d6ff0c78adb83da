package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one raw message. Returning an error leaves the
// offset uncommitted so the broker redelivers the message later; handlers
// must therefore be idempotent.
type MessageHandler func(ctx context.Context, topic string, key, value []byte) error

// ConsumerGroup runs one reader goroutine per subscribed topic under a shared
// group id. Offsets commit only after the handler succeeds (at-least-once).
type ConsumerGroup struct {
	brokers []string
	groupID string
	topics  []string
	handler MessageHandler
	logger  *slog.Logger

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
	started bool
}

func NewConsumerGroup(brokers []string, groupID string, topics []string, handler MessageHandler, logger *slog.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		brokers: brokers,
		groupID: groupID,
		topics:  topics,
		handler: handler,
		logger:  logger.With(slog.String("consumer_group", groupID)),
	}
}

// Start launches the consume loops. It returns immediately; loops run until
// ctx is cancelled or Close is called.
func (c *ConsumerGroup) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	for _, topic := range c.topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: c.brokers,
			Topic:   topic,
			GroupID: c.groupID,
		})
		c.readers = append(c.readers, reader)

		c.wg.Add(1)
		go c.consumeLoop(ctx, reader, topic)
	}
}

func (c *ConsumerGroup) consumeLoop(ctx context.Context, reader *kafka.Reader, topic string) {
	defer c.wg.Done()
	logger := c.logger.With(slog.String("topic", topic))
	logger.Info("consumer loop started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				logger.Info("consumer loop stopped")
				return
			}
			logger.Error("fetch failed", slog.String("error", err.Error()))
			continue
		}

		if err := c.handler(ctx, topic, msg.Key, msg.Value); err != nil {
			// Offset stays uncommitted; the broker redelivers the message.
			logger.Error("message handling failed, offset not committed",
				slog.String("key", string(msg.Key)),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("offset commit failed", slog.String("error", err.Error()))
		}
	}
}

// Close stops every reader and waits for the consume loops to drain.
func (c *ConsumerGroup) Close() error {
	c.mu.Lock()
	readers := c.readers
	c.readers = nil
	c.mu.Unlock()

	var errs []error
	for _, reader := range readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.wg.Wait()
	return errors.Join(errs...)
}
