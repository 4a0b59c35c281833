package model

import (
	"time"

	"labslot/pkg/interval"
)

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusWaitlisted BookingStatus = "waitlisted"
	StatusCancelled  BookingStatus = "cancelled"
)

// ActiveStatuses occupy a resource's calendar for conflict purposes.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed}

func (s BookingStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusWaitlisted, StatusCancelled:
		return true
	}
	return false
}

func ParseBookingStatus(s string) (BookingStatus, bool) {
	status := BookingStatus(s)
	return status, status.Valid()
}

type Booking struct {
	ID         string        `json:"id" bson:"_id"`
	ResourceID string        `json:"resource_id" bson:"resource_id"`
	UserID     string        `json:"user_id" bson:"user_id"`
	StartTime  time.Time     `json:"start_time" bson:"start_time"`
	EndTime    time.Time     `json:"end_time" bson:"end_time"`
	Status     BookingStatus `json:"status" bson:"status"`
	Notes      string        `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt  time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" bson:"updated_at"`
	Resolution *Resolution   `json:"resolution,omitempty" bson:"resolution,omitempty"`
}

func (b *Booking) Interval() interval.Interval {
	return interval.Interval{Start: b.StartTime, End: b.EndTime}
}

// Resolution records who moved a booking into its current status and why.
type Resolution struct {
	Action    string    `json:"action" bson:"action"`
	ActorKind ActorKind `json:"actor_kind" bson:"actor_kind"`
	ActorID   string    `json:"actor_id,omitempty" bson:"actor_id,omitempty"`
	ActorName string    `json:"actor_name,omitempty" bson:"actor_name,omitempty"`
	Reason    string    `json:"reason,omitempty" bson:"reason,omitempty"`
	At        time.Time `json:"at" bson:"at"`
}

func NewResolution(action string, actor Actor, reason string, at time.Time) *Resolution {
	return &Resolution{
		Action:    action,
		ActorKind: actor.Kind,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Reason:    reason,
		At:        at,
	}
}

type BookingRequest struct {
	ResourceID string    `json:"resource_id" validate:"required,max=64,identifier"`
	UserID     string    `json:"user_id" validate:"required,max=64,identifier"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" validate:"required"`
	Notes      string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type BookingDecision struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}
