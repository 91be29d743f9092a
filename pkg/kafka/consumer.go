package kafka

import (
	"context"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"tradeleague/pkg/config"
)

// Message is the broker-agnostic shape handed to handlers.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// MessageHandler processes one message. Returning nil acknowledges the
// message; returning an error leaves the offset uncommitted so the broker
// redelivers it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *Message) error
}

// Consumer runs a consumer-group poll loop dispatching each message to the
// handler registered for its topic.
type Consumer struct {
	consumer *kafka.Consumer
	handlers map[string]MessageHandler
}

func NewConsumer(cfg *config.Config) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Kafka.Addrs,
		"group.id":           cfg.Kafka.ConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, err
	}

	return &Consumer{
		consumer: c,
		handlers: make(map[string]MessageHandler),
	}, nil
}

// Register binds a handler to a topic. Must be called before Run.
func (c *Consumer) Register(topic string, handler MessageHandler) {
	c.handlers[topic] = handler
}

func (c *Consumer) Run(ctx context.Context) error {
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		return err
	}

	zap.L().Info("[Kafka] Consuming", zap.Strings("topics", topics))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg, err := c.consumer.ReadMessage(time.Second)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			zap.L().Error("[Kafka] Read failed", zap.Error(err))
			continue
		}

		topic := ""
		if msg.TopicPartition.Topic != nil {
			topic = *msg.TopicPartition.Topic
		}

		handler, ok := c.handlers[topic]
		if !ok {
			zap.L().Warn("[Kafka] No handler for topic", zap.String("topic", topic))
			if _, err := c.consumer.CommitMessage(msg); err != nil {
				zap.L().Error("[Kafka] Commit failed", zap.Error(err))
			}
			continue
		}

		if err := handler.HandleMessage(ctx, &Message{Topic: topic, Key: msg.Key, Value: msg.Value}); err != nil {
			// offset stays uncommitted; the broker redelivers
			zap.L().Error("[Kafka] Handler failed",
				zap.String("topic", topic),
				zap.String("key", string(msg.Key)),
				zap.Error(err),
			)
			continue
		}

		if _, err := c.consumer.CommitMessage(msg); err != nil {
			zap.L().Error("[Kafka] Commit failed", zap.Error(err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
