package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Ensure KafkaLedger implements Ledger
var _ Ledger = (*KafkaLedger)(nil)

// KafkaLedger publishes events to a Kafka topic, keyed by tx id. Writes are
// synchronous so the tx id is only returned once the brokers acknowledged it.
type KafkaLedger struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaLedger creates a producer for topic.
func NewKafkaLedger(brokers []string, topic string, requiredAcks int, compression string) (*KafkaLedger, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(requiredAcks),
		Compression:  parseCompression(compression),
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    1,
		Async:        false,
	}
	return &KafkaLedger{writer: writer, topic: topic}, nil
}

func (l *KafkaLedger) Publish(ctx context.Context, ev Event) (string, error) {
	txID, err := TxID(ev)
	if err != nil {
		return "", err
	}
	value, err := Canonical(Record{Event: ev, TxID: txID})
	if err != nil {
		return "", err
	}
	msg := kafka.Message{
		Key:   []byte(txID),
		Value: value,
		Time:  time.Now(),
	}
	if err := l.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("%w: kafka topic %s: %v", ErrUnavailable, l.topic, err)
	}
	return txID, nil
}

func (l *KafkaLedger) Close() error {
	if l.writer != nil {
		return l.writer.Close()
	}
	return nil
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
