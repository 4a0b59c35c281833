package kafka

import (
	"context"
	"errors"
	"testing"

	kafka_config "labslot/pkg/kafka/config"
	"labslot/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMessage(t *testing.T, key string, value any) Message {
	t.Helper()
	msg, err := NewMessage().
		WithKey(key).
		WithValue(value).
		WithEventType("booking.approved").
		WithSource("bookings").
		Build()
	require.NoError(t, err)
	return msg
}

func TestMessageBuilder_StampsHeaders(t *testing.T) {
	msg := buildMessage(t, "booking:1", map[string]string{"id": "1"})

	assert.NotEmpty(t, msg.GetEventID())
	assert.Equal(t, "booking.approved", msg.GetEventType())
	assert.Equal(t, SchemaVersionV1, msg.Headers[HeaderSchemaVersion])
	assert.NotEmpty(t, msg.Headers[HeaderTimestamp])
	assert.JSONEq(t, `{"id":"1"}`, string(msg.Value))
}

func TestMessageBuilder_EncodeErrorIsPermanent(t *testing.T) {
	_, err := NewMessage().WithKey("k").WithValue(make(chan int)).Build()

	require.Error(t, err)
	assert.Equal(t, ErrorTypePermanent, ClassifyError(err))
}

func TestMessage_RetryCountRoundTrip(t *testing.T) {
	msg := Message{Headers: map[string]string{}}
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	assert.Equal(t, 12, msg.GetRetryCount())
}

func TestProducer_PublishRunsMiddlewareInOrder(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, "labslot.notifications", "", logger.Discard())

	var order []string
	p.Use(func(ctx context.Context, msg Message, next PublishFunc) error {
		order = append(order, "outer")
		return next(ctx, msg)
	})
	p.Use(func(ctx context.Context, msg Message, next PublishFunc) error {
		order = append(order, "inner")
		assert.Equal(t, "labslot.notifications", msg.Topic)
		return next(ctx, msg)
	})

	require.NoError(t, p.Publish(context.Background(), buildMessage(t, "user-1", "hello")))

	assert.Equal(t, []string{"outer", "inner"}, order)
	written := w.messages()
	require.Len(t, written, 1)
	assert.Equal(t, "user-1", string(written[0].Key))
	assert.Equal(t, "booking.approved", headerValue(written[0], HeaderEventType))
}

func TestProducer_RejectsEmptyKeyAndValue(t *testing.T) {
	p := newProducer(&fakeWriter{}, nil, "t", "", logger.Discard())

	assert.ErrorIs(t, p.Publish(context.Background(), Message{Value: []byte("x")}), ErrEmptyKey)
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Key: "k"}), ErrEmptyValue)
}

func TestProducer_FailedWriteGoesToDLQ(t *testing.T) {
	cause := errors.New("leader not available")
	w := &fakeWriter{err: cause}
	dlq := &fakeWriter{}
	p := newProducer(w, dlq, "labslot.audit", "dlq-labslot-dispatch", logger.Discard())

	msg := buildMessage(t, "booking:9", "payload")
	err := p.Publish(context.Background(), msg)

	assert.ErrorIs(t, err, cause)
	parked := dlq.messages()
	require.Len(t, parked, 1)
	assert.Equal(t, "labslot.audit", headerValue(parked[0], HeaderOriginalTopic))
	assert.Equal(t, cause.Error(), headerValue(parked[0], HeaderDLQError))
	assert.Empty(t, msg.Headers[HeaderOriginalTopic], "caller's headers must not be mutated")
}

func TestProducer_ClosedRejectsPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, "t", "", logger.Discard())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), buildMessage(t, "k", "v")), ErrProducerClosed)
}

func TestNewProducer_ValidatesArguments(t *testing.T) {
	cfg := &kafka_config.Config{Brokers: []string{"localhost:9092"}}

	_, err := NewProducer(nil, "t", "", logger.Discard())
	assert.Error(t, err)

	_, err = NewProducer(cfg, "", "", logger.Discard())
	assert.Error(t, err)

	_, err = NewProducer(&kafka_config.Config{}, "t", "", logger.Discard())
	assert.Error(t, err)
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorTypeUnknown, ClassifyError(nil))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(errors.New("dial tcp: Connection Refused")))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(context.DeadlineExceeded))
	assert.Equal(t, ErrorTypePermanent, ClassifyError(errors.New("something odd")))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(NewTransientError("store", errors.New("x"))))

	assert.True(t, ShouldRetry(errors.New("i/o timeout"), 0, 3))
	assert.False(t, ShouldRetry(errors.New("i/o timeout"), 3, 3))
	assert.False(t, ShouldRetry(errors.New("bad payload"), 0, 3))
}
