package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Edit request target types
const (
	TargetProject      = "project"
	TargetEvent        = "event"
	TargetApplication  = "application"
	TargetRegistration = "registration"
)

// Edit request statuses
const (
	EditPending  = "pending"
	EditApproved = "approved"
	EditRejected = "rejected"
)

// EditRequest is a proposed change to an existing record, merged only after admin approval.
type EditRequest struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	TargetType  string                 `bson:"target_type" json:"target_type"`
	TargetID    primitive.ObjectID     `bson:"target_id" json:"target_id"`
	RequestedBy primitive.ObjectID     `bson:"requested_by" json:"requested_by"`
	Changes     map[string]interface{} `bson:"changes" json:"changes"`
	Reason      string                 `bson:"reason,omitempty" json:"reason,omitempty"`
	Status      string                 `bson:"status" json:"status"` // pending, approved, rejected
	ReviewedBy  primitive.ObjectID     `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewNote  string                 `bson:"review_note,omitempty" json:"review_note,omitempty"`
	ReviewedAt  *time.Time             `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	CreatedAt   time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `bson:"updated_at" json:"updated_at"`
}
