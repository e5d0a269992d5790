// Package notify delivers out-of-band messages such as confirmation codes.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"review-api/internal/core/config"
)

type Message struct {
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	From    string   `json:"from"`
	To      []string `json:"to"`
}

type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// Log writes messages to the logger instead of delivering them. Development only.
type Log struct{ L *zap.Logger }

func (n Log) Send(_ context.Context, m Message) error {
	n.L.Info("notification",
		zap.String("subject", m.Subject),
		zap.String("from", m.From),
		zap.Strings("to", m.To),
		zap.String("body", m.Body),
	)
	return nil
}

// FromConfig picks the driver named by mail.driver.
func FromConfig(c config.Mail, l *zap.Logger) (Notifier, error) {
	switch c.Driver {
	case "", "log":
		return Log{L: l}, nil
	case "smtp":
		return NewSMTP(c.SMTP)
	case "kafka":
		return NewKafka(c.Kafka.Brokers, c.Kafka.Topic)
	}
	return nil, fmt.Errorf("notify: unknown driver %q", c.Driver)
}
