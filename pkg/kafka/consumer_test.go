package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"labslot/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConsumer(t *testing.T, c *Consumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, c.Close())
}

func TestConsumer_HandlesAndCommitsEachMessage(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Key: []byte("a"), Value: []byte(`1`), Offset: 1},
		kafka.Message{Key: []byte("b"), Value: []byte(`2`), Offset: 2},
	)
	var seen []string
	c := newConsumer(r, nil, "labslot.notifications", "g", func(_ context.Context, msg Message) error {
		seen = append(seen, msg.Key)
		return nil
	}, logger.Discard())

	runConsumer(t, c, r)

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Len(t, r.commits(), 2)
}

func TestConsumer_RetriesTransientFailures(t *testing.T) {
	r := newFakeReader(kafka.Message{Key: []byte("a"), Value: []byte(`1`)})
	var calls atomic.Int32
	c := newConsumer(r, nil, "t", "g", func(context.Context, Message) error {
		if calls.Add(1) < 3 {
			return NewTransientError("mongo", errors.New("connection reset"))
		}
		return nil
	}, logger.Discard())
	c.maxRetries = 3

	runConsumer(t, c, r)

	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, r.commits(), 1)
}

func TestConsumer_PermanentFailureParksAndCommits(t *testing.T) {
	r := newFakeReader(kafka.Message{Key: []byte("a"), Value: []byte(`{`)})
	dlq := &fakeWriter{}
	var calls atomic.Int32
	c := newConsumer(r, dlq, "labslot.audit", "labslot-notifier", func(_ context.Context, msg Message) error {
		calls.Add(1)
		var v map[string]any
		return msg.DecodeValue(&v)
	}, logger.Discard())
	c.maxRetries = 5

	runConsumer(t, c, r)

	assert.Equal(t, int32(1), calls.Load(), "permanent errors are not retried")
	parked := dlq.messages()
	require.Len(t, parked, 1)
	assert.Equal(t, "labslot-notifier", headerValue(parked[0], "dlq-consumer-group"))
	assert.Equal(t, "labslot.audit", headerValue(parked[0], HeaderOriginalTopic))
	assert.Len(t, r.commits(), 1)
}

func TestConsumer_MiddlewareWrapsHandler(t *testing.T) {
	r := newFakeReader(kafka.Message{Key: []byte("a"), Value: []byte(`1`)})
	var wrapped bool
	c := newConsumer(r, nil, "t", "g", func(context.Context, Message) error { return nil }, logger.Discard())
	c.Use(func(ctx context.Context, msg Message, next MessageHandler) error {
		wrapped = true
		return next(ctx, msg)
	})

	runConsumer(t, c, r)
	assert.True(t, wrapped)
}

func TestConsumer_StartAfterCloseFails(t *testing.T) {
	c := newConsumer(newFakeReader(), nil, "t", "g", func(context.Context, Message) error { return nil }, logger.Discard())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Start(context.Background()), ErrConsumerClosed)
}
