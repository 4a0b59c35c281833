package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"labslot/pkg/config"
	"labslot/pkg/kafka"
	"labslot/pkg/logger"
	"labslot/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingSink struct {
	mu     sync.Mutex
	sent   []Envelope
	ctxErr []error
	send   func(ctx context.Context, env Envelope) error
	closed bool
}

func (s *recordingSink) Send(ctx context.Context, env Envelope) error {
	if s.send != nil {
		if err := s.send(ctx, env); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	s.ctxErr = append(s.ctxErr, ctx.Err())
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) envelopes() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.sent...)
}

func newTestDispatcher(sink Sink, out *lockedBuffer) *Dispatcher {
	log := logger.Discard()
	if out != nil {
		log = logger.New(logger.Config{Output: out, Level: logger.DEBUG})
	}
	cfg := &config.Config{
		Log:               log,
		NotificationTopic: "labslot.notifications",
		AuditTopic:        "labslot.audit",
		DispatchTimeout:   time.Second,
	}
	d := NewDispatcher(sink, cfg)
	d.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return d
}

func TestDispatcher_NotifyStampsAndRoutes(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(sink, nil)

	d.Notify(context.Background(), model.Notification{
		UserID: "user-1",
		Kind:   model.NotifyPromoted,
		Title:  "Your waitlisted booking moved up",
		Read:   true,
	})
	d.Flush()

	sent := sink.envelopes()
	require.Len(t, sent, 1)
	env := sent[0]
	assert.Equal(t, KindNotification, env.Kind)
	assert.Equal(t, "labslot.notifications", env.Topic)
	assert.Equal(t, "user-1", env.Key)
	assert.Equal(t, model.NotifyPromoted, env.EventType)

	n := env.Payload.(model.Notification)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, n.ID, env.ID)
	assert.False(t, n.Read, "new notifications are unread")
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), n.CreatedAt)
}

func TestDispatcher_AuditKeepsProvidedIDAndTime(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(sink, nil)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	d.Audit(context.Background(), model.AuditRecord{
		ID:        "audit-1",
		Actor:     model.SystemActor(),
		Action:    model.AuditBookingPromoted,
		EntityRef: model.BookingRef("b-1"),
		At:        at,
	})
	d.Flush()

	sent := sink.envelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, "labslot.audit", sent[0].Topic)
	assert.Equal(t, "booking:b-1", sent[0].Key)
	rec := sent[0].Payload.(model.AuditRecord)
	assert.Equal(t, "audit-1", rec.ID)
	assert.Equal(t, at, rec.At)
	assert.Equal(t, model.ActorSystem, rec.Actor.Kind)
}

func TestDispatcher_ReturnsBeforeDelivery(t *testing.T) {
	release := make(chan struct{})
	sink := &recordingSink{send: func(ctx context.Context, env Envelope) error {
		<-release
		return nil
	}}
	d := newTestDispatcher(sink, nil)

	returned := make(chan struct{})
	go func() {
		d.Notify(context.Background(), model.Notification{UserID: "u", Kind: model.NotifyApproved})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on the sink")
	}
	close(release)
	d.Flush()
	assert.Len(t, sink.envelopes(), 1)
}

func TestDispatcher_DeliverySurvivesCallerCancellation(t *testing.T) {
	started := make(chan struct{})
	sink := &recordingSink{send: func(ctx context.Context, env Envelope) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		return nil
	}}
	d := newTestDispatcher(sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	d.Audit(ctx, model.AuditRecord{Action: model.AuditBookingCancelled, EntityRef: "booking:1"})
	<-started
	cancel()
	d.Flush()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.ctxErr, 1)
	assert.NoError(t, sink.ctxErr[0])
}

func TestDispatcher_FailuresAreLoggedNotPropagated(t *testing.T) {
	out := &lockedBuffer{}
	sink := &recordingSink{send: func(ctx context.Context, env Envelope) error {
		if env.Kind == KindAudit {
			panic("sink exploded")
		}
		return errors.New("broker down")
	}}
	d := newTestDispatcher(sink, out)

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), model.Notification{UserID: "u", Kind: model.NotifyRejected})
		d.Audit(context.Background(), model.AuditRecord{Action: model.AuditBookingRejected, EntityRef: "booking:1"})
		d.Flush()
	})

	logged := out.String()
	assert.Contains(t, logged, "NOTIFICATION_FAILED")
	assert.Contains(t, logged, "broker down")
	assert.Contains(t, logged, "sink exploded")
}

func TestDispatcher_CloseDrainsThenDrops(t *testing.T) {
	sink := &recordingSink{send: func(ctx context.Context, env Envelope) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}}
	d := newTestDispatcher(sink, nil)

	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), model.Notification{UserID: "u", Kind: model.NotifyApproved})
	}
	require.NoError(t, d.Close())
	assert.Len(t, sink.envelopes(), 5)
	assert.True(t, sink.closed)

	d.Notify(context.Background(), model.Notification{UserID: "u", Kind: model.NotifyApproved})
	d.Flush()
	assert.Len(t, sink.envelopes(), 5)
	assert.NoError(t, d.Close())
}

type fakeKafkaPublisher struct {
	published []kafka.Message
	closed    bool
}

func (p *fakeKafkaPublisher) Publish(_ context.Context, msg kafka.Message) error {
	p.published = append(p.published, msg)
	return nil
}

func (p *fakeKafkaPublisher) Close() error {
	p.closed = true
	return nil
}

func TestKafkaSink_RoutesByTopic(t *testing.T) {
	notifications := &fakeKafkaPublisher{}
	audits := &fakeKafkaPublisher{}
	sink := &KafkaSink{producers: map[string]kafkaPublisher{
		"labslot.notifications": notifications,
		"labslot.audit":         audits,
	}}

	err := sink.Send(context.Background(), Envelope{
		ID:        "evt-1",
		Topic:     "labslot.audit",
		Key:       "booking:1",
		EventType: model.AuditBookingApproved,
		At:        time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Payload:   map[string]string{"action": "booking.approved"},
	})
	require.NoError(t, err)

	assert.Empty(t, notifications.published)
	require.Len(t, audits.published, 1)
	msg := audits.published[0]
	assert.Equal(t, "booking:1", msg.Key)
	assert.Equal(t, "evt-1", msg.GetEventID())
	assert.Equal(t, EventSource, msg.Headers[kafka.HeaderSource])
	assert.Equal(t, "2026-03-02T09:00:00Z", msg.Headers[kafka.HeaderTimestamp])
	assert.JSONEq(t, `{"action":"booking.approved"}`, string(msg.Value))

	assert.Error(t, sink.Send(context.Background(), Envelope{Topic: "unknown", Key: "k", Payload: 1}))

	require.NoError(t, sink.Close())
	assert.True(t, notifications.closed)
	assert.True(t, audits.closed)
}

type fakeAMQPPublisher struct {
	routingKey string
	messageID  string
	body       []byte
	headers    map[string]string
}

func (p *fakeAMQPPublisher) Publish(_ context.Context, routingKey, messageID string, body []byte, headers map[string]string) error {
	p.routingKey, p.messageID, p.body, p.headers = routingKey, messageID, body, headers
	return nil
}

func (p *fakeAMQPPublisher) Close() error { return nil }

func TestRabbitSink_RoutingKeyCombinesTopicAndEventType(t *testing.T) {
	pub := &fakeAMQPPublisher{}
	sink := NewRabbitSink(pub)

	n := model.Notification{ID: "n-1", UserID: "tech-1", Kind: model.NotifyPromotionReview}
	require.NoError(t, sink.Send(context.Background(), Envelope{
		ID:        n.ID,
		Topic:     "labslot.notifications",
		Key:       n.UserID,
		EventType: n.Kind,
		Payload:   n,
	}))

	assert.Equal(t, "labslot.notifications.booking.promotion_review", pub.routingKey)
	assert.Equal(t, "n-1", pub.messageID)
	assert.Equal(t, "tech-1", pub.headers["partition-key"])

	var decoded model.Notification
	require.NoError(t, json.Unmarshal(pub.body, &decoded))
	assert.Equal(t, n.UserID, decoded.UserID)
}

func TestLogSink_WritesEvent(t *testing.T) {
	out := &lockedBuffer{}
	sink := NewLogSink(logger.New(logger.Config{Output: out}))

	require.NoError(t, sink.Send(context.Background(), Envelope{Kind: KindAudit, EventType: "booking.cancelled", ID: "e-1"}))
	assert.Contains(t, out.String(), "booking.cancelled")
	assert.NoError(t, sink.Close())
}
