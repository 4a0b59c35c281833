package service

import (
	"context"

	"labslot/internal/bookings/repository"
	"labslot/pkg/interval"
	"labslot/pkg/model"
)

// ConflictChecker is the only place that decides whether an interval is free
// on a resource. Callers that activate a booking must run it inside the same
// unit of work as the status write, after locking the resource.
type ConflictChecker struct {
	repo repository.BookingRepository
}

func NewConflictChecker(repo repository.BookingRepository) *ConflictChecker {
	return &ConflictChecker{repo: repo}
}

func (c *ConflictChecker) HasConflict(ctx context.Context, resourceID string, iv interval.Interval, excludeBookingID string) (bool, error) {
	b, err := c.FirstConflict(ctx, resourceID, iv, excludeBookingID)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// FirstConflict returns the earliest active booking overlapping iv, or nil.
func (c *ConflictChecker) FirstConflict(ctx context.Context, resourceID string, iv interval.Interval, excludeBookingID string) (*model.Booking, error) {
	active, err := c.repo.FindActive(ctx, resourceID, &iv)
	if err != nil {
		return nil, err
	}
	for _, b := range active {
		if b.ID == excludeBookingID {
			continue
		}
		if interval.Overlaps(b.Interval(), iv) {
			return b, nil
		}
	}
	return nil, nil
}
