package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"labslot/pkg/kafka"
	"labslot/pkg/logger"
)

const (
	EventSource = "labslot-bookings"

	KindNotification = "notification"
	KindAudit        = "audit"
)

// Envelope is one outbound event. Key groups events that must stay ordered:
// the recipient for notifications, the entity ref for audits.
type Envelope struct {
	ID        string
	Kind      string
	Topic     string
	Key       string
	EventType string
	At        time.Time
	Payload   any
}

// Sink delivers envelopes to a transport.
type Sink interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}

type kafkaPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaSink routes each envelope to the producer for its topic.
type KafkaSink struct {
	producers map[string]kafkaPublisher
}

func NewKafkaSink(producers ...*kafka.Producer) *KafkaSink {
	s := &KafkaSink{producers: make(map[string]kafkaPublisher, len(producers))}
	for _, p := range producers {
		s.producers[p.Topic()] = p
	}
	return s
}

func (s *KafkaSink) Send(ctx context.Context, env Envelope) error {
	producer, ok := s.producers[env.Topic]
	if !ok {
		return fmt.Errorf("no producer for topic %q", env.Topic)
	}

	msg, err := kafka.NewMessage().
		WithKey(env.Key).
		WithValue(env.Payload).
		WithEventID(env.ID).
		WithEventType(env.EventType).
		WithSource(EventSource).
		WithTimestamp(env.At).
		Build()
	if err != nil {
		return err
	}
	return producer.Publish(ctx, msg)
}

func (s *KafkaSink) Close() error {
	var firstErr error
	for _, p := range s.producers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type amqpPublisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte, headers map[string]string) error
	Close() error
}

// RabbitSink publishes to a topic exchange with routing key
// "<topic>.<event type>", e.g. "labslot.notifications.booking.promoted".
type RabbitSink struct {
	publisher amqpPublisher
}

func NewRabbitSink(publisher amqpPublisher) *RabbitSink {
	return &RabbitSink{publisher: publisher}
}

func (s *RabbitSink) Send(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	headers := map[string]string{
		kafka.HeaderEventType:     env.EventType,
		kafka.HeaderSource:        EventSource,
		kafka.HeaderSchemaVersion: kafka.SchemaVersionV1,
		"partition-key":           env.Key,
	}
	return s.publisher.Publish(ctx, env.Topic+"."+env.EventType, env.ID, body, headers)
}

func (s *RabbitSink) Close() error {
	return s.publisher.Close()
}

// LogSink writes envelopes to the service log; used when no broker is
// configured.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, env Envelope) error {
	s.log.Info("event dispatched",
		"kind", env.Kind,
		"topic", env.Topic,
		"key", env.Key,
		"event_type", env.EventType,
		"event_id", env.ID,
		"payload", env.Payload,
	)
	return nil
}

func (s *LogSink) Close() error {
	return nil
}
