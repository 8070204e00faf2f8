package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loveworld-europe/donations/pkg/logger"

	kafkaGo "github.com/segmentio/kafka-go"
)

// writerPublisher реализует Publisher через segmentio/kafka-go Writer.
type writerPublisher struct {
	writer *kafkaGo.Writer
	log    *logger.Logger
}

// NewWriterPublisher создает продюсер на kafka-go.
func NewWriterPublisher(brokers []string, log *logger.Logger) (Publisher, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokers...),
		Balancer:     &kafkaGo.Hash{}, // один ключ (кампания) - одна партиция
		RequiredAcks: kafkaGo.RequireAll,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka writer initialized", "brokers", brokers)
	return &writerPublisher{writer: writer, log: log}, nil
}

// Publish сериализует payload в JSON и пишет сообщение в топик.
func (k *writerPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		k.log.Errorw("Failed to marshal event for Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafkaGo.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafkaGo.Header{{Key: eventTypeHeader, Value: []byte(topic)}},
		Time:    time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "key", key)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Published message to Kafka", "topic", topic, "key", key)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *writerPublisher) Close() error {
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka writer closed")
	return nil
}

const eventTypeHeader = "event_type"
