package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"review-api/internal/core/config"
)

func TestLogNotifier(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	n := Log{L: zap.New(core)}
	require.NoError(t, n.Send(context.Background(), Message{Subject: "code", Body: "abc", From: "f@x", To: []string{"a@x.com"}}))

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0].ContextMap()["body"])
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}
func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierPublishesEvent(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	k := &Kafka{w: w}
	require.NoError(t, k.Send(context.Background(), Message{Subject: "code", Body: "abc", From: "f@x", To: []string{"A@x.com"}}))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "a@x.com", string(w.msgs[0].Key))
	var ev map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "email", ev["type"])
	assert.Equal(t, "abc", ev["body"])
	assert.Equal(t, []any{"A@x.com"}, ev["to"])
}

func TestKafkaNotifierError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	k := &Kafka{w: &fakeWriter{err: boom}}
	assert.ErrorIs(t, k.Send(context.Background(), Message{To: []string{"a@x.com"}}), boom)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	n, err := FromConfig(config.Mail{Driver: "log"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Log{}, n)

	_, err = FromConfig(config.Mail{Driver: "kafka"}, zap.NewNop())
	assert.Error(t, err, "kafka without brokers")

	n, err = FromConfig(config.Mail{Driver: "kafka", Kafka: config.Kafka{Brokers: []string{"localhost:9092"}, Topic: "t"}}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Kafka{}, n)

	_, err = FromConfig(config.Mail{Driver: "pigeon"}, zap.NewNop())
	assert.Error(t, err)
}
