package repository

import (
	"context"
	"fmt"
	"time"

	bookingserrors "labslot/internal/bookings/errors"
	"labslot/pkg/interval"
	"labslot/pkg/model"

	"github.com/google/uuid"
)

// TransactionFunc is a unit of work. Every store call made inside it must use
// the ctx it receives.
type TransactionFunc = func(ctx context.Context) error

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// FindActive returns the pending and confirmed bookings of a resource.
	// A non-nil window limits the result to bookings overlapping it.
	FindActive(ctx context.Context, resourceID string, window *interval.Interval) ([]*model.Booking, error)
	// FindWaitlisted returns waitlisted bookings in arrival order.
	FindWaitlisted(ctx context.Context, resourceID string) ([]*model.Booking, error)
	FindByResource(ctx context.Context, resourceID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, error)
	CountByResource(ctx context.Context, resourceID string, status model.BookingStatus) (int64, error)
	// UpdateStatus moves a booking from one status to another and returns
	// ErrStatusChanged when the stored status is not from.
	UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, resolution *model.Resolution) error
	// LockResource serializes units of work touching the same resource. It
	// must be the first call on that resource inside ExecuteTransaction.
	LockResource(ctx context.Context, resourceID string) error
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type ResourceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Resource, error)
}

// prepareForInsert assigns the identity and creation time of a new booking.
// Ids are UUIDv7 so they sort in creation order.
func prepareForInsert(booking *model.Booking, now time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate booking id: %w", err)
	}
	booking.ID = id.String()
	booking.CreatedAt = now.UTC().Truncate(time.Millisecond)
	booking.UpdatedAt = booking.CreatedAt
	return nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return nil
}

// withTimeout bounds ctx by timeout unless ctx already carries an earlier
// deadline. Inside a transaction the ctx is returned unchanged.
func withTimeout(ctx context.Context, inTx bool, timeout time.Duration) (context.Context, context.CancelFunc) {
	if inTx {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}
