package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orderbridge/internal/models"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAuditSink publishes audit entries to a topic keyed by entity id.
type KafkaAuditSink struct {
	w messageWriter
}

func NewKafkaAuditSink(brokers []string, topic string) *KafkaAuditSink {
	return &KafkaAuditSink{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (s *KafkaAuditSink) Record(ctx context.Context, entry *models.AuditLog) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.EntityID),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	})
}

func (s *KafkaAuditSink) Close() error {
	return s.w.Close()
}
