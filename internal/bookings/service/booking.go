package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"labslot/internal/bookings/repository"
	"labslot/pkg/config"
	apperrors "labslot/pkg/errors"
	"labslot/pkg/interval"
	"labslot/pkg/model"
	"labslot/pkg/sanitizer"
)

const (
	actionApprove = "approve"
	actionReject  = "reject"
	actionCancel  = "cancel"
	actionPromote = "promote"
)

// RequestInput is a reservation request that already passed boundary
// validation.
type RequestInput struct {
	ResourceID string
	UserID     string
	Interval   interval.Interval
	Notes      string
}

type BookingService interface {
	Request(ctx context.Context, in RequestInput, actor model.Actor) (*model.Booking, error)
	Approve(ctx context.Context, id string, actor model.Actor) (*model.Booking, error)
	Reject(ctx context.Context, id string, actor model.Actor, reason string) (*model.Booking, error)
	Cancel(ctx context.Context, id string, actor model.Actor, reason string) (*model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListByResource(ctx context.Context, resourceID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, int64, error)
}

type bookingService struct {
	repo       repository.BookingRepository
	resources  repository.ResourceRepository
	conflicts  *ConflictChecker
	promoter   *Promoter
	dispatcher Dispatcher
	cfg        *config.Config
	now        func() time.Time
}

func NewBookingService(
	repo repository.BookingRepository,
	resources repository.ResourceRepository,
	promoter *Promoter,
	dispatcher Dispatcher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:       repo,
		resources:  resources,
		conflicts:  NewConflictChecker(repo),
		promoter:   promoter,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (s *bookingService) Request(ctx context.Context, in RequestInput, actor model.Actor) (*model.Booking, error) {
	if in.ResourceID == "" || in.UserID == "" {
		return nil, apperrors.InvalidInput("ResourceID and UserID are required")
	}
	if !in.Interval.Start.Before(in.Interval.End) {
		return nil, apperrors.InvalidInterval("start_time must be before end_time")
	}

	resource, err := s.resources.FindByID(ctx, in.ResourceID)
	if err != nil {
		return nil, toAppError(err, in.ResourceID, "Failed to load resource")
	}

	var booking *model.Booking
	err = withResourceLock(ctx, s.repo, s.cfg.LockTimeout, resource.ID, func(ctx context.Context) error {
		conflict, err := s.conflicts.HasConflict(ctx, resource.ID, in.Interval, "")
		if err != nil {
			return err
		}

		status := model.StatusPending
		if conflict {
			if !resource.AllowQueueing {
				return apperrors.SlotUnavailable(resource.ID)
			}
			status = model.StatusWaitlisted
		}
		if !CanTransition(stateRequested, status) {
			return apperrors.InvalidTransition("", "requested", string(status))
		}

		booking = &model.Booking{
			ResourceID: resource.ID,
			UserID:     in.UserID,
			StartTime:  in.Interval.Start.UTC(),
			EndTime:    in.Interval.End.UTC(),
			Status:     status,
			Notes:      sanitizer.SanitizeNotes(in.Notes),
		}
		return s.repo.Create(ctx, booking)
	})
	if err != nil {
		err = toAppError(err, in.ResourceID, "Failed to create booking")
		s.cfg.Log.Warn("Booking request failed",
			"resource_id", in.ResourceID,
			"user_id", in.UserID,
			"error", err,
		)
		return nil, err
	}

	action := model.AuditBookingRequested
	if booking.Status == model.StatusWaitlisted {
		action = model.AuditBookingWaitlisted
	}
	s.audit(ctx, actorOr(actor, in.UserID), action, booking, map[string]any{
		"resource_id": booking.ResourceID,
		"start_time":  booking.StartTime,
		"end_time":    booking.EndTime,
		"status":      booking.Status,
	})

	s.cfg.Log.Info("Booking requested",
		"id", booking.ID,
		"resource_id", booking.ResourceID,
		"user_id", booking.UserID,
		"status", booking.Status,
	)
	return booking, nil
}

func (s *bookingService) Approve(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *model.Booking
	var replay bool
	err = withResourceLock(ctx, s.repo, s.cfg.LockTimeout, existing.ResourceID, func(ctx context.Context) error {
		replay = false
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}

		switch current.Status {
		case model.StatusConfirmed:
			replay = true
			result = current
			return nil
		case model.StatusPending:
		default:
			return apperrors.InvalidTransition(id, string(current.Status), string(model.StatusConfirmed))
		}

		conflict, err := s.conflicts.HasConflict(ctx, current.ResourceID, current.Interval(), current.ID)
		if err != nil {
			return err
		}
		if conflict {
			return apperrors.StaleConflict(id)
		}

		result, err = s.transition(ctx, current, model.StatusConfirmed, actionApprove, actor, "")
		return err
	})
	if err != nil {
		err = toAppError(err, id, "Failed to approve booking")
		s.cfg.Log.Warn("Booking approval failed", "id", id, "error", err)
		return nil, err
	}
	if replay {
		s.cfg.Log.Debug("Booking already confirmed", "id", id)
		return result, nil
	}

	s.audit(ctx, actor, model.AuditBookingApproved, result, map[string]any{
		"from": model.StatusPending,
		"to":   model.StatusConfirmed,
	})
	s.notifyOwner(ctx, result, model.NotifyApproved,
		"Booking approved",
		fmt.Sprintf("Your booking for %s was approved.", result.Interval()),
	)

	s.cfg.Log.Info("Booking approved", "id", id, "resource_id", result.ResourceID)
	return result, nil
}

func (s *bookingService) Reject(ctx context.Context, id string, actor model.Actor, reason string) (*model.Booking, error) {
	return s.close(ctx, id, actor, reason, actionReject)
}

func (s *bookingService) Cancel(ctx context.Context, id string, actor model.Actor, reason string) (*model.Booking, error) {
	return s.close(ctx, id, actor, reason, actionCancel)
}

// close moves a booking to Cancelled on behalf of reject or cancel and hands
// the vacated interval to the promoter once the write has committed.
func (s *bookingService) close(ctx context.Context, id string, actor model.Actor, reason string, action string) (*model.Booking, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	reason = sanitizer.SanitizeReason(reason)

	var result *model.Booking
	var from model.BookingStatus
	var replay bool
	err = withResourceLock(ctx, s.repo, s.cfg.LockTimeout, existing.ResourceID, func(ctx context.Context) error {
		replay = false
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status

		if from == model.StatusCancelled {
			replay = true
			result = current
			return nil
		}
		if !closeAllowed(action, from) {
			return apperrors.InvalidTransition(id, string(from), string(model.StatusCancelled))
		}

		result, err = s.transition(ctx, current, model.StatusCancelled, action, actor, reason)
		return err
	})
	if err != nil {
		err = toAppError(err, id, "Failed to "+action+" booking")
		s.cfg.Log.Warn("Booking "+action+" failed", "id", id, "error", err)
		return nil, err
	}
	if replay {
		s.cfg.Log.Debug("Booking already cancelled", "id", id, "action", action)
		return result, nil
	}

	auditAction := model.AuditBookingCancelled
	if action == actionReject {
		auditAction = model.AuditBookingRejected
		s.notifyOwner(ctx, result, model.NotifyRejected,
			"Booking rejected",
			rejectionMessage(result, reason),
		)
	}
	s.audit(ctx, actor, auditAction, result, map[string]any{
		"from":   from,
		"to":     model.StatusCancelled,
		"reason": reason,
	})
	s.cfg.Log.Info("Booking closed",
		"id", id,
		"action", action,
		"from", from,
		"resource_id", result.ResourceID,
	)

	if vacatesSlot(from) {
		s.promoteAfterCommit(ctx, result.ResourceID, result.Interval())
	}
	return result, nil
}

func closeAllowed(action string, from model.BookingStatus) bool {
	if action == actionReject {
		return from == model.StatusPending
	}
	return CanTransition(from, model.StatusCancelled)
}

func (s *bookingService) transition(ctx context.Context, current *model.Booking, to model.BookingStatus, action string, actor model.Actor, reason string) (*model.Booking, error) {
	if !CanTransition(current.Status, to) {
		return nil, apperrors.InvalidTransition(current.ID, string(current.Status), string(to))
	}

	now := s.now().UTC()
	resolution := model.NewResolution(action, actor, reason, now)
	if err := s.repo.UpdateStatus(ctx, current.ID, current.Status, to, resolution); err != nil {
		return nil, err
	}

	updated := *current
	updated.Status = to
	updated.UpdatedAt = now.Truncate(time.Millisecond)
	updated.Resolution = resolution
	return &updated, nil
}

// promoteAfterCommit runs the promoter for a vacated slot. The caller's
// transition already committed, so nothing here may fail it: the promoter
// gets its own deadline detached from ctx and its errors are only logged.
func (s *bookingService) promoteAfterCommit(ctx context.Context, resourceID string, freed interval.Interval) {
	if s.promoter == nil {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PromotionTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Log.Error("Waitlist promotion panicked",
				"resource_id", resourceID,
				"panic", r,
			)
		}
	}()

	promotedID, err := s.promoter.PromoteVacated(pctx, resourceID, freed)
	if err != nil {
		s.cfg.Log.Error("Waitlist promotion failed",
			"resource_id", resourceID,
			"freed", freed.String(),
			"error", err,
		)
		return
	}
	if promotedID != "" {
		s.cfg.Log.Info("Waitlisted booking promoted",
			"resource_id", resourceID,
			"promoted_id", promotedID,
		)
	}
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, toAppError(err, id, "Failed to retrieve booking")
	}
	return booking, nil
}

func (s *bookingService) ListByResource(ctx context.Context, resourceID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, int64, error) {
	if resourceID == "" {
		return nil, 0, apperrors.InvalidInput("ResourceID is required")
	}
	if status != "" && !status.Valid() {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("Unknown booking status %q", status))
	}
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.CountByResource(ctx, resourceID, status)
		if err != nil {
			s.cfg.Log.Error("Failed to count bookings", "resource_id", resourceID, "error", err)
			errCount = toAppError(err, resourceID, "Failed to count bookings")
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		bookings, err = s.repo.FindByResource(ctx, resourceID, status, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to list bookings",
				"resource_id", resourceID,
				"limit", limit,
				"offset", offset,
				"error", err,
			)
			errFind = toAppError(err, resourceID, "Failed to retrieve bookings")
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// --- Helpers ---

func (s *bookingService) audit(ctx context.Context, actor model.Actor, action string, b *model.Booking, details map[string]any) {
	if s.dispatcher == nil {
		return
	}
	defer s.recoverSideEffect("audit", b.ID)
	s.dispatcher.Audit(ctx, model.AuditRecord{
		Actor:     actor,
		Action:    action,
		EntityRef: model.BookingRef(b.ID),
		Details:   details,
		At:        s.now().UTC(),
	})
}

func (s *bookingService) notifyOwner(ctx context.Context, b *model.Booking, kind, title, message string) {
	if s.dispatcher == nil {
		return
	}
	defer s.recoverSideEffect("notify owner", b.ID)
	s.dispatcher.Notify(ctx, model.Notification{
		UserID:   b.UserID,
		Kind:     kind,
		Title:    title,
		Message:  message,
		LinkHint: bookingLink(b.ID),
	})
}

func (s *bookingService) recoverSideEffect(step, bookingID string) {
	if r := recover(); r != nil {
		s.cfg.Log.Error("Booking side effect panicked",
			"step", step,
			"booking_id", bookingID,
			"panic", r,
		)
	}
}

func rejectionMessage(b *model.Booking, reason string) string {
	msg := fmt.Sprintf("Your booking for %s was rejected.", b.Interval())
	if reason != "" {
		msg += " Reason: " + reason
	}
	return msg
}

func actorOr(actor model.Actor, userID string) model.Actor {
	if actor.Kind == "" {
		return model.HumanActor(userID, "")
	}
	return actor
}

func bookingLink(id string) string {
	return "/bookings/" + id
}
