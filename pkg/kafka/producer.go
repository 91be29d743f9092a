package kafka

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"tradeleague/pkg/config"
)

// Publisher is the narrow producing capability handed to the rest of the
// engine; the dead-letter layer republishes through it.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

type Producer struct {
	producer *kafka.Producer
}

func NewProducer(cfg *config.Config) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Kafka.Addrs,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &Producer{producer: p}, nil
}

func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	delivery := make(chan kafka.Event, 1)

	err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, delivery)
	if err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("deliver to %s: %w", topic, m.TopicPartition.Error)
		}
	}

	return nil
}

func (p *Producer) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}

var ProducerModule = fx.Module("kafka:producer",
	fx.Provide(registerProducer),
)

func registerProducer(lc fx.Lifecycle, cfg *config.Config) (*Producer, error) {
	producer, err := NewProducer(cfg)
	if err != nil {
		return nil, err
	}

	zap.L().Info("[Kafka] Producer configured", zap.String("addrs", cfg.Kafka.Addrs))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			producer.Close()
			return nil
		},
	})

	return producer, nil
}
