package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Audit actions
const (
	ActionSubmitted   = "submitted"
	ActionApproved    = "approved"
	ActionRejected    = "rejected"
	ActionResubmitted = "resubmitted"
	ActionShown       = "shown"
	ActionHidden      = "hidden"
	ActionEdited      = "edited"
	ActionEditApplied = "edit_applied"
	ActionApplied     = "applied"
	ActionAccepted    = "accepted"
	ActionWithdrawn   = "withdrawn"
	ActionRegistered  = "registered"
	ActionWaitlisted  = "waitlisted"
	ActionPromoted    = "promoted"
	ActionCancelled   = "cancelled"
)

// AuditEntry is one element of a record's append-only audit trail.
type AuditEntry struct {
	Action     string             `bson:"action" json:"action"`
	FromStatus string             `bson:"from_status,omitempty" json:"from_status,omitempty"`
	ToStatus   string             `bson:"to_status,omitempty" json:"to_status,omitempty"`
	By         primitive.ObjectID `bson:"by" json:"by"`
	Note       string             `bson:"note,omitempty" json:"note,omitempty"`
	At         time.Time          `bson:"at" json:"at"`
}
