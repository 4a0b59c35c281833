package service

import "labslot/pkg/model"

// stateRequested is the implicit state of a booking that does not exist yet.
const stateRequested model.BookingStatus = ""

var allowedTransitions = map[model.BookingStatus]map[model.BookingStatus]bool{
	stateRequested:         {model.StatusPending: true, model.StatusWaitlisted: true},
	model.StatusPending:    {model.StatusConfirmed: true, model.StatusCancelled: true},
	model.StatusConfirmed:  {model.StatusCancelled: true},
	model.StatusWaitlisted: {model.StatusPending: true, model.StatusCancelled: true},
	model.StatusCancelled:  {},
}

func CanTransition(from, to model.BookingStatus) bool {
	m, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return m[to]
}

// vacatesSlot reports whether leaving from frees calendar time that a
// waitlisted booking could take.
func vacatesSlot(from model.BookingStatus) bool {
	return from.IsActive()
}
