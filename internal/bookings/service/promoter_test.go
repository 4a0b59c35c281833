package service

import (
	"context"
	"errors"
	"testing"

	"labslot/internal/bookings/repository"
	"labslot/pkg/interval"
	"labslot/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancel_ConfirmedPromotesOverlappingWaitlisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b1 := f.request(t, queueingResource, "alice", span(10, 0, 11, 0))
	_, err := f.svc.Approve(ctx, b1.ID, admin)
	require.NoError(t, err)

	b2 := f.request(t, queueingResource, "bob", span(10, 30, 11, 30))
	require.Equal(t, model.StatusWaitlisted, b2.Status)
	f.dispatcher.reset()

	_, err = f.svc.Cancel(ctx, b1.ID, model.HumanActor("alice", "Alice"), "")
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, f.status(t, b2.ID))

	owner := f.dispatcher.notificationsOfKind(model.NotifyPromoted)
	require.Len(t, owner, 1)
	assert.Equal(t, "bob", owner[0].UserID)
	assert.Equal(t, "/bookings/"+b2.ID, owner[0].LinkHint)

	reviewers := f.dispatcher.notificationsOfKind(model.NotifyPromotionReview)
	require.Len(t, reviewers, len(f.resolver.ids))
	assert.ElementsMatch(t, f.resolver.ids, []string{reviewers[0].UserID, reviewers[1].UserID})
	assert.Equal(t, []string{labID}, f.resolver.labIDs)

	audits := f.dispatcher.auditsOfAction(model.AuditBookingPromoted)
	require.Len(t, audits, 1)
	assert.Equal(t, model.ActorSystem, audits[0].Actor.Kind)
	assert.Empty(t, audits[0].Actor.ID)
	assert.Equal(t, model.BookingRef(b2.ID), audits[0].EntityRef)

	promoted, err := f.store.FindByID(ctx, b2.ID)
	require.NoError(t, err)
	require.NotNil(t, promoted.Resolution)
	assert.Equal(t, "promote", promoted.Resolution.Action)
	assert.Equal(t, model.ActorSystem, promoted.Resolution.ActorKind)
}

func TestPromote_CoverageDecidesBetweenWaitlisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, queueingResource, span(9, 0, 10, 0), model.StatusConfirmed)
	f.seed(t, queueingResource, span(10, 0, 10, 30), model.StatusConfirmed)
	w1 := f.seed(t, queueingResource, span(9, 0, 10, 0), model.StatusWaitlisted)
	w2 := f.seed(t, queueingResource, span(9, 30, 10, 30), model.StatusWaitlisted)

	blocker, err := f.store.FindActive(ctx, queueingResource, &interval.Interval{Start: at(9, 0), End: at(9, 1)})
	require.NoError(t, err)
	require.Len(t, blocker, 1)
	require.NoError(t, f.store.UpdateStatus(ctx, blocker[0].ID, model.StatusConfirmed, model.StatusCancelled, nil))

	id, err := f.promoter.Promote(ctx, queueingResource, span(9, 0, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, w1.ID, id)
	assert.Equal(t, model.StatusPending, f.status(t, w1.ID))
	assert.Equal(t, model.StatusWaitlisted, f.status(t, w2.ID))
}

func TestCancel_FreedIntervalMustCoverWaitlisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x := f.request(t, queueingResource, "xavier", span(9, 0, 10, 0))
	f.request(t, queueingResource, "yuri", span(10, 0, 10, 30))
	w1 := f.request(t, queueingResource, "wendy", span(9, 0, 10, 0))
	w2 := f.request(t, queueingResource, "walt", span(9, 30, 10, 30))
	require.Equal(t, model.StatusWaitlisted, w1.Status)
	require.Equal(t, model.StatusWaitlisted, w2.Status)

	_, err := f.svc.Cancel(ctx, x.ID, model.HumanActor("xavier", ""), "")
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, f.status(t, w1.ID))
	assert.Equal(t, model.StatusWaitlisted, f.status(t, w2.ID))
	assertNoActiveOverlap(t, f.store, queueingResource)
}

func TestPromote_FIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.request(t, queueingResource, "alice", span(10, 0, 11, 0))
	w1 := f.request(t, queueingResource, "bob", span(10, 0, 11, 0))
	w2 := f.request(t, queueingResource, "carol", span(10, 0, 11, 0))

	_, err := f.svc.Reject(ctx, b.ID, admin, "")
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, f.status(t, w1.ID))
	assert.Equal(t, model.StatusWaitlisted, f.status(t, w2.ID))
}

func TestPromote_FIFOSkipsCandidatesThatDoNotFit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, queueingResource, span(12, 0, 13, 0), model.StatusConfirmed)
	tooLong := f.seed(t, queueingResource, span(10, 0, 12, 30), model.StatusWaitlisted)
	fits := f.seed(t, queueingResource, span(10, 0, 11, 0), model.StatusWaitlisted)

	id, err := f.promoter.Promote(ctx, queueingResource, span(10, 0, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, fits.ID, id)
	assert.Equal(t, model.StatusWaitlisted, f.status(t, tooLong.ID))
}

func TestPromote_PartialCoverageNeverPromotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.seed(t, queueingResource, span(10, 0, 12, 0), model.StatusWaitlisted)

	id, err := f.promoter.Promote(ctx, queueingResource, span(10, 0, 11, 0))
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, model.StatusWaitlisted, f.status(t, w.ID))
	assert.Empty(t, f.dispatcher.auditsOfAction(model.AuditBookingPromoted))
}

func TestPromote_PartialCoverageThroughCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.request(t, queueingResource, "alice", span(10, 0, 11, 0))
	f.request(t, queueingResource, "bob", span(11, 0, 12, 0))
	w := f.request(t, queueingResource, "carol", span(10, 0, 12, 0))
	require.Equal(t, model.StatusWaitlisted, w.Status)

	_, err := f.svc.Cancel(ctx, first.ID, model.HumanActor("alice", ""), "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitlisted, f.status(t, w.ID))
}

func TestPromote_SkipsCandidateStillInConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, queueingResource, span(10, 30, 11, 0), model.StatusPending)
	blocked := f.seed(t, queueingResource, span(10, 0, 11, 0), model.StatusWaitlisted)
	free := f.seed(t, queueingResource, span(10, 0, 10, 30), model.StatusWaitlisted)

	id, err := f.promoter.Promote(ctx, queueingResource, span(10, 0, 11, 0))
	require.NoError(t, err)
	assert.Equal(t, free.ID, id)
	assert.Equal(t, model.StatusWaitlisted, f.status(t, blocked.ID))
}

func TestPromote_AtMostOnePerCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w1 := f.seed(t, queueingResource, span(10, 0, 11, 0), model.StatusWaitlisted)
	w2 := f.seed(t, queueingResource, span(11, 0, 12, 0), model.StatusWaitlisted)
	w3 := f.seed(t, queueingResource, span(12, 0, 13, 0), model.StatusWaitlisted)

	id, err := f.promoter.Promote(ctx, queueingResource, span(10, 0, 13, 0))
	require.NoError(t, err)
	assert.Equal(t, w1.ID, id)

	pending, err := f.store.FindByResource(ctx, queueingResource, model.StatusPending, 10, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, model.StatusWaitlisted, f.status(t, w2.ID))
	assert.Equal(t, model.StatusWaitlisted, f.status(t, w3.ID))
}

func TestPromote_NoCandidatesIsNoOp(t *testing.T) {
	f := newFixture(t)

	id, err := f.promoter.Promote(context.Background(), queueingResource, span(10, 0, 11, 0))
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, f.dispatcher.notifications)
}

func TestPromote_NotificationFailuresDoNotUndoPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dispatcher.notifyFunc = func(n model.Notification) {
		panic("smtp relay down")
	}
	f.resolver.err = errors.New("membership store offline")

	b := f.request(t, queueingResource, "alice", span(10, 0, 11, 0))
	w := f.request(t, queueingResource, "bob", span(10, 0, 11, 0))

	cancelled, err := f.svc.Cancel(ctx, b.ID, model.HumanActor("alice", ""), "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, model.StatusPending, f.status(t, w.ID))
	assert.Len(t, f.dispatcher.auditsOfAction(model.AuditBookingPromoted), 1)
}

type failingWaitlistRepo struct {
	*repository.MemoryStore
}

func (r failingWaitlistRepo) FindWaitlisted(ctx context.Context, resourceID string) ([]*model.Booking, error) {
	return nil, errors.New("disk on fire")
}

func TestCancel_PromotionErrorNeverFailsCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broken := NewPromoter(failingWaitlistRepo{f.store}, f.store.Resources(), f.resolver, f.dispatcher, f.cfg)
	svc := NewBookingService(f.store, f.store.Resources(), broken, f.dispatcher, f.cfg)

	b := f.request(t, queueingResource, "alice", span(10, 0, 11, 0))
	w := f.request(t, queueingResource, "bob", span(10, 0, 11, 0))

	cancelled, err := svc.Cancel(ctx, b.ID, model.HumanActor("alice", ""), "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, model.StatusCancelled, f.status(t, b.ID))
	assert.Equal(t, model.StatusWaitlisted, f.status(t, w.ID))
}

func TestCancel_PromotionSurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	b := f.request(t, queueingResource, "alice", span(10, 0, 11, 0))
	w := f.request(t, queueingResource, "bob", span(10, 0, 11, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := f.svc.(*bookingService)
	svc.dispatcher = cancelOnAudit{f.dispatcher, cancel}

	_, err := svc.Cancel(ctx, b.ID, model.HumanActor("alice", ""), "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, f.status(t, w.ID))
}

// cancelOnAudit cancels the caller's context as soon as the cancel is audited,
// which happens after commit and before promotion starts.
type cancelOnAudit struct {
	*recordingDispatcher
	cancel context.CancelFunc
}

func (d cancelOnAudit) Audit(ctx context.Context, rec model.AuditRecord) {
	d.recordingDispatcher.Audit(ctx, rec)
	if rec.Action == model.AuditBookingCancelled {
		d.cancel()
	}
}

func TestFreeGap(t *testing.T) {
	vacated := span(10, 0, 11, 0)

	gap := freeGap(vacated, nil)
	assert.True(t, gap.Start.IsZero())
	assert.Equal(t, endOfTime, gap.End)

	gap = freeGap(vacated, []*model.Booking{
		{StartTime: at(8, 0), EndTime: at(9, 0)},
		{StartTime: at(9, 0), EndTime: at(9, 30)},
		{StartTime: at(12, 0), EndTime: at(13, 0)},
		{StartTime: at(11, 15), EndTime: at(11, 45)},
	})
	assert.Equal(t, at(9, 30), gap.Start)
	assert.Equal(t, at(11, 15), gap.End)
}
