package service

import (
	"context"
	"errors"
	"time"

	bookingserrors "labslot/internal/bookings/errors"
	"labslot/internal/bookings/repository"
	apperrors "labslot/pkg/errors"
)

// withResourceLock runs fn as one unit of work holding the resource lock. The
// whole unit, lock wait included, is bounded by timeout.
func withResourceLock(ctx context.Context, repo repository.BookingRepository, timeout time.Duration, resourceID string, fn repository.TransactionFunc) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return repo.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if err := repo.LockResource(ctx, resourceID); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// toAppError maps store sentinels onto the API taxonomy. AppErrors pass
// through untouched.
func toAppError(err error, entityID string, fallback string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return apperrors.AsAppError(err)
	}

	switch {
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", entityID)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking ID format")
	case errors.Is(err, bookingserrors.ErrResourceNotFound):
		return apperrors.NotFoundWithID("Resource", entityID)
	case errors.Is(err, bookingserrors.ErrStatusChanged):
		return apperrors.Conflict("Booking was modified concurrently, please retry")
	case errors.Is(err, bookingserrors.ErrLockTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return apperrors.StoreUnavailable(fallback, err)
	default:
		return apperrors.Internal(fallback, err)
	}
}
