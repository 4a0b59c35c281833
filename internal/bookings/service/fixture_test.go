package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"labslot/internal/bookings/repository"
	"labslot/pkg/config"
	"labslot/pkg/interval"
	"labslot/pkg/logger"
	"labslot/pkg/model"

	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func span(h1, m1, h2, m2 int) interval.Interval {
	return interval.Interval{Start: at(h1, m1), End: at(h2, m2)}
}

type recordingDispatcher struct {
	mu            sync.Mutex
	notifications []model.Notification
	audits        []model.AuditRecord
	notifyFunc    func(n model.Notification)
}

func (d *recordingDispatcher) Notify(ctx context.Context, n model.Notification) {
	if d.notifyFunc != nil {
		d.notifyFunc(n)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, n)
}

func (d *recordingDispatcher) Audit(ctx context.Context, rec model.AuditRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.audits = append(d.audits, rec)
}

func (d *recordingDispatcher) notificationsOfKind(kind string) []model.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.Notification
	for _, n := range d.notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (d *recordingDispatcher) auditsOfAction(action string) []model.AuditRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.AuditRecord
	for _, a := range d.audits {
		if a.Action == action {
			out = append(out, a)
		}
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = nil
	d.audits = nil
}

type staticResolver struct {
	mu     sync.Mutex
	ids    []string
	err    error
	labIDs []string
}

func (r *staticResolver) PrivilegedRecipientsFor(ctx context.Context, labID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labIDs = append(r.labIDs, labID)
	return r.ids, r.err
}

type fixture struct {
	store      *repository.MemoryStore
	cfg        *config.Config
	dispatcher *recordingDispatcher
	resolver   *staticResolver
	promoter   *Promoter
	svc        BookingService
}

const (
	queueingResource = "res-queue"
	strictResource   = "res-strict"
	labID            = "lab-chem"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	store.AddResource(model.Resource{ID: queueingResource, Name: "Confocal", LabID: labID, AllowQueueing: true})
	store.AddResource(model.Resource{ID: strictResource, Name: "Fume hood", AllowQueueing: false})

	cfg := &config.Config{
		Log:              logger.Discard(),
		LockTimeout:      2 * time.Second,
		PromotionTimeout: 2 * time.Second,
	}
	dispatcher := &recordingDispatcher{}
	resolver := &staticResolver{ids: []string{"admin-1", "tech-1"}}
	promoter := NewPromoter(store, store.Resources(), resolver, dispatcher, cfg)

	return &fixture{
		store:      store,
		cfg:        cfg,
		dispatcher: dispatcher,
		resolver:   resolver,
		promoter:   promoter,
		svc:        NewBookingService(store, store.Resources(), promoter, dispatcher, cfg),
	}
}

func (f *fixture) request(t *testing.T, resourceID, userID string, iv interval.Interval) *model.Booking {
	t.Helper()
	b, err := f.svc.Request(context.Background(), RequestInput{
		ResourceID: resourceID,
		UserID:     userID,
		Interval:   iv,
	}, model.HumanActor(userID, ""))
	require.NoError(t, err)
	return b
}

func (f *fixture) status(t *testing.T, id string) model.BookingStatus {
	t.Helper()
	b, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

// seed writes a booking straight into the store, bypassing the engine.
func (f *fixture) seed(t *testing.T, resourceID string, iv interval.Interval, status model.BookingStatus) *model.Booking {
	t.Helper()
	b := &model.Booking{
		ResourceID: resourceID,
		UserID:     "seed",
		StartTime:  iv.Start,
		EndTime:    iv.End,
		Status:     status,
	}
	require.NoError(t, f.store.Create(context.Background(), b))
	return b
}

var admin = model.HumanActor("admin-1", "Ada")

// assertNoActiveOverlap checks that no two active bookings of a resource overlap.
func assertNoActiveOverlap(t *testing.T, store *repository.MemoryStore, resourceID string) {
	t.Helper()
	active, err := store.FindActive(context.Background(), resourceID, nil)
	require.NoError(t, err)
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			require.Falsef(t, interval.Overlaps(active[i].Interval(), active[j].Interval()),
				"active bookings %s %s and %s %s overlap",
				active[i].ID, active[i].Interval(), active[j].ID, active[j].Interval())
		}
	}
}
