package model

import "time"

// ResourceLock is the per-resource document every booking transaction writes
// before reading the resource's bookings, so concurrent transactions on the
// same resource conflict and serialize.
type ResourceLock struct {
	ID        string    `bson:"_id" json:"id"`
	Version   int64     `bson:"version" json:"version"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
