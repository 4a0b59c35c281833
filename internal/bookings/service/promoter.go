package service

import (
	"context"
	"fmt"
	"time"

	"labslot/internal/bookings/repository"
	"labslot/pkg/config"
	apperrors "labslot/pkg/errors"
	"labslot/pkg/interval"
	"labslot/pkg/model"
)

// Promoter moves the oldest waitlisted booking that fits a freed slot into
// the approval queue. Each call promotes at most one booking.
type Promoter struct {
	repo       repository.BookingRepository
	resources  repository.ResourceRepository
	conflicts  *ConflictChecker
	recipients RecipientResolver
	dispatcher Dispatcher
	cfg        *config.Config
	now        func() time.Time
}

func NewPromoter(
	repo repository.BookingRepository,
	resources repository.ResourceRepository,
	recipients RecipientResolver,
	dispatcher Dispatcher,
	cfg *config.Config,
) *Promoter {
	return &Promoter{
		repo:       repo,
		resources:  resources,
		conflicts:  NewConflictChecker(repo),
		recipients: recipients,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Promote scans the resource's waitlist in arrival order and promotes the
// first booking whose interval lies inside freed and clashes with no active
// booking. It returns the promoted id, or "" when nothing qualified.
func (p *Promoter) Promote(ctx context.Context, resourceID string, freed interval.Interval) (string, error) {
	return p.promote(ctx, resourceID, freed, func(context.Context) (interval.Interval, error) {
		return freed, nil
	})
}

// PromoteVacated runs a promotion for the slot a cancelled or rejected
// booking gave up. The coverage window is the free gap around vacated,
// bounded by the nearest active bookings on either side, and only waitlisted
// bookings overlapping vacated are considered.
func (p *Promoter) PromoteVacated(ctx context.Context, resourceID string, vacated interval.Interval) (string, error) {
	return p.promote(ctx, resourceID, vacated, func(ctx context.Context) (interval.Interval, error) {
		active, err := p.repo.FindActive(ctx, resourceID, nil)
		if err != nil {
			return interval.Interval{}, err
		}
		return freeGap(vacated, active), nil
	})
}

func (p *Promoter) promote(ctx context.Context, resourceID string, trigger interval.Interval, window func(context.Context) (interval.Interval, error)) (string, error) {
	var promoted *model.Booking
	var freed interval.Interval
	err := withResourceLock(ctx, p.repo, p.cfg.LockTimeout, resourceID, func(ctx context.Context) error {
		promoted = nil
		var err error
		if freed, err = window(ctx); err != nil {
			return err
		}

		candidates, err := p.repo.FindWaitlisted(ctx, resourceID)
		if err != nil {
			return err
		}

		for _, candidate := range candidates {
			iv := candidate.Interval()
			if !interval.Overlaps(trigger, iv) || !interval.Covers(freed, iv) {
				continue
			}
			conflict, err := p.conflicts.HasConflict(ctx, resourceID, iv, candidate.ID)
			if err != nil {
				return err
			}
			if conflict {
				continue
			}

			now := p.now().UTC()
			resolution := model.NewResolution(actionPromote, model.SystemActor(), "", now)
			if err := p.repo.UpdateStatus(ctx, candidate.ID, model.StatusWaitlisted, model.StatusPending, resolution); err != nil {
				return err
			}
			candidate.Status = model.StatusPending
			candidate.UpdatedAt = now.Truncate(time.Millisecond)
			candidate.Resolution = resolution
			promoted = candidate
			return nil
		}
		return nil
	})
	if err != nil {
		return "", toAppError(err, resourceID, "Failed to promote waitlisted booking")
	}
	if promoted == nil {
		p.cfg.Log.Debug("No waitlisted booking fits freed slot",
			"resource_id", resourceID,
			"freed", freed.String(),
		)
		return "", nil
	}

	p.announce(ctx, promoted, trigger)
	return promoted.ID, nil
}

// freeGap widens vacated to the stretch of calendar left free by the active
// bookings. Bookings overlapping vacated are ignored; the per-candidate
// conflict check still guards them.
func freeGap(vacated interval.Interval, active []*model.Booking) interval.Interval {
	gap := interval.Interval{Start: time.Time{}, End: endOfTime}
	for _, b := range active {
		if !b.EndTime.After(vacated.Start) && b.EndTime.After(gap.Start) {
			gap.Start = b.EndTime
		}
		if !b.StartTime.Before(vacated.End) && b.StartTime.Before(gap.End) {
			gap.End = b.StartTime
		}
	}
	return gap
}

var endOfTime = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// announce fires the post-promotion side effects. Each one is isolated so a
// failure in one never stops the others or reaches the caller.
func (p *Promoter) announce(ctx context.Context, b *model.Booking, vacated interval.Interval) {
	if p.dispatcher == nil {
		return
	}

	p.guard("notify owner", b.ID, func() {
		p.dispatcher.Notify(ctx, model.Notification{
			UserID:   b.UserID,
			Kind:     model.NotifyPromoted,
			Title:    "Waitlisted booking needs approval",
			Message:  fmt.Sprintf("A slot opened for %s. Your request is now pending approval.", b.Interval()),
			LinkHint: bookingLink(b.ID),
		})
	})

	p.guard("notify reviewers", b.ID, func() {
		recipients, err := p.reviewers(ctx, b.ResourceID)
		if err != nil {
			p.cfg.Log.Error("Failed to resolve promotion reviewers",
				"booking_id", b.ID,
				"resource_id", b.ResourceID,
				"error", apperrors.NotificationFailed("recipient lookup failed", err),
			)
			return
		}
		for _, userID := range recipients {
			p.dispatcher.Notify(ctx, model.Notification{
				UserID:   userID,
				Kind:     model.NotifyPromotionReview,
				Title:    "Promoted booking awaiting review",
				Message:  fmt.Sprintf("A waitlisted booking for %s was promoted automatically and needs approval.", b.Interval()),
				LinkHint: bookingLink(b.ID),
			})
		}
	})

	p.guard("audit", b.ID, func() {
		p.dispatcher.Audit(ctx, model.AuditRecord{
			Actor:     model.SystemActor(),
			Action:    model.AuditBookingPromoted,
			EntityRef: model.BookingRef(b.ID),
			Details: map[string]any{
				"resource_id": b.ResourceID,
				"from":        model.StatusWaitlisted,
				"to":          model.StatusPending,
				"slot_start":  vacated.Start,
				"slot_end":    vacated.End,
			},
			At: p.now().UTC(),
		})
	})
}

func (p *Promoter) reviewers(ctx context.Context, resourceID string) ([]string, error) {
	if p.recipients == nil {
		return nil, nil
	}
	resource, err := p.resources.FindByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return p.recipients.PrivilegedRecipientsFor(ctx, resource.LabID)
}

func (p *Promoter) guard(step, bookingID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Log.Error("Promotion side effect panicked",
				"step", step,
				"booking_id", bookingID,
				"panic", r,
			)
		}
	}()
	fn()
}
