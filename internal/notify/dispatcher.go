package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"labslot/pkg/config"
	apperrors "labslot/pkg/errors"
	"labslot/pkg/logger"
	"labslot/pkg/model"

	"github.com/google/uuid"
)

// Dispatcher hands notifications and audit records to a Sink on background
// goroutines. Callers never wait on delivery and never see its errors.
type Dispatcher struct {
	sink              Sink
	log               *logger.Logger
	notificationTopic string
	auditTopic        string
	timeout           time.Duration
	now               func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sink Sink, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		sink:              sink,
		log:               cfg.Log.With("component", "dispatcher"),
		notificationTopic: cfg.NotificationTopic,
		auditTopic:        cfg.AuditTopic,
		timeout:           cfg.DispatchTimeout,
		now:               time.Now,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n model.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
	n.Read = false

	d.dispatch(ctx, Envelope{
		ID:        n.ID,
		Kind:      KindNotification,
		Topic:     d.notificationTopic,
		Key:       n.UserID,
		EventType: n.Kind,
		At:        n.CreatedAt,
		Payload:   n,
	})
}

func (d *Dispatcher) Audit(ctx context.Context, rec model.AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = d.now().UTC()
	}

	d.dispatch(ctx, Envelope{
		ID:        rec.ID,
		Kind:      KindAudit,
		Topic:     d.auditTopic,
		Key:       rec.EntityRef,
		EventType: rec.Action,
		At:        rec.At,
		Payload:   rec,
	})
}

// Close waits for in-flight sends and then closes the sink. Events submitted
// after Close are dropped with a log line.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	return d.sink.Close()
}

// Flush blocks until every event submitted so far has been handed to the sink.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, env Envelope) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.log.Warn("dispatcher closed, event dropped", "kind", env.Kind, "event_type", env.EventType, "event_id", env.ID)
		return
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := d.send(sendCtx, env); err != nil {
			failure := apperrors.NotificationFailed(fmt.Sprintf("%s %s delivery failed", env.Kind, env.EventType), err)
			d.log.Error("event delivery failed",
				"code", failure.Code,
				"kind", env.Kind,
				"topic", env.Topic,
				"key", env.Key,
				"event_type", env.EventType,
				"event_id", env.ID,
				"error", err,
			)
		}
	}()
}

func (d *Dispatcher) send(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return d.sink.Send(ctx, env)
}
