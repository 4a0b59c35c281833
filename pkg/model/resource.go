package model

// Resource is a bookable instrument or bench. LabID is empty when the resource
// belongs to no lab.
type Resource struct {
	ID            string `json:"id" bson:"_id"`
	Name          string `json:"name" bson:"name"`
	LabID         string `json:"lab_id,omitempty" bson:"lab_id,omitempty"`
	AllowQueueing bool   `json:"allow_queueing" bson:"allow_queueing"`
}
