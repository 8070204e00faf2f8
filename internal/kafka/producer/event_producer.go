package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/loveworld-europe/donations/internal/kafka"
	"github.com/loveworld-europe/donations/pkg/logger"
)

// EventProducer публикует события пожертвований через sarama SyncProducer
type EventProducer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewEventProducer создает продюсер поверх готового sarama.SyncProducer
func NewEventProducer(producer sarama.SyncProducer, log *logger.Logger) *EventProducer {
	return &EventProducer{
		producer: producer,
		log:      log,
	}
}

// Dial подключается к брокерам и создает EventProducer
func Dial(cfg *kafka.Config, log *logger.Logger) (*EventProducer, error) {
	saramaConfig := kafka.NewSaramaConfig(cfg, log)

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		log.Errorw("Failed to create Kafka producer", "error", err, "brokers", cfg.Brokers)
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Infow("Kafka producer initialized", "brokers", cfg.Brokers)
	return NewEventProducer(producer, log), nil
}

// Publish отправляет событие в топик. Тип события передается в заголовке event_type.
func (p *EventProducer) Publish(ctx context.Context, topic, key string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(payload)
	if err != nil {
		p.log.Errorw("Failed to marshal event", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(topic),
			},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Errorw("Failed to send event to Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("failed to send event to Kafka: %w", err)
	}

	p.log.Debugw("Event sent to Kafka",
		"topic", topic,
		"key", key,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Close закрывает продюсер
func (p *EventProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		p.log.Errorw("Failed to close Kafka producer", "error", err)
		return err
	}
	return nil
}

var _ kafka.Publisher = (*EventProducer)(nil)
