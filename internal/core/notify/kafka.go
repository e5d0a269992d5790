package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes messages as JSON events for an external mailer. The first
// recipient is the partition key so a user's notifications stay ordered.
type Kafka struct {
	w messageWriter
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka notifier: brokers and topic are required")
	}
	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}}, nil
}

type event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Message
}

func (k *Kafka) Send(ctx context.Context, m Message) error {
	payload, err := json.Marshal(event{Type: "email", OccurredAt: time.Now().UTC(), Message: m})
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strings.ToLower(strings.Join(m.To, ","))),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.w.Close() }
