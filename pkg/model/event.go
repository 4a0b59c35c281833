package model

import "time"

type ActorKind string

const (
	ActorHuman  ActorKind = "human"
	ActorSystem ActorKind = "system"
)

type Actor struct {
	Kind ActorKind `json:"kind" bson:"kind"`
	ID   string    `json:"id,omitempty" bson:"id,omitempty"`
	Name string    `json:"name,omitempty" bson:"name,omitempty"`
}

func HumanActor(id, name string) Actor {
	return Actor{Kind: ActorHuman, ID: id, Name: name}
}

// SystemActor identifies transitions the engine performs on its own, such as
// waitlist promotion.
func SystemActor() Actor {
	return Actor{Kind: ActorSystem, Name: "system"}
}

const (
	AuditBookingRequested  = "booking.requested"
	AuditBookingWaitlisted = "booking.waitlisted"
	AuditBookingApproved   = "booking.approved"
	AuditBookingRejected   = "booking.rejected"
	AuditBookingCancelled  = "booking.cancelled"
	AuditBookingPromoted   = "booking.promoted"
)

type AuditRecord struct {
	ID        string         `json:"id" bson:"_id"`
	Actor     Actor          `json:"actor" bson:"actor"`
	Action    string         `json:"action" bson:"action"`
	EntityRef string         `json:"entity_ref" bson:"entity_ref"`
	Details   map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	At        time.Time      `json:"at" bson:"at"`
}

const (
	NotifyPromoted        = "booking.promoted"
	NotifyPromotionReview = "booking.promotion_review"
	NotifyApproved        = "booking.approved"
	NotifyRejected        = "booking.rejected"
)

type Notification struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Kind      string    `json:"kind" bson:"kind"`
	Title     string    `json:"title" bson:"title"`
	Message   string    `json:"message" bson:"message"`
	LinkHint  string    `json:"link_hint,omitempty" bson:"link_hint,omitempty"`
	Read      bool      `json:"read" bson:"read"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func BookingRef(id string) string {
	return "booking:" + id
}
