package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Submission statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// SubmissionBase holds the fields shared by project and event submissions.
// IsVisible may only be true while Status is approved.
type SubmissionBase struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title           string             `bson:"title" json:"title"`
	Description     string             `bson:"description" json:"description"`
	Organization    string             `bson:"organization" json:"organization"`
	Category        string             `bson:"category" json:"category"`
	Location        string             `bson:"location,omitempty" json:"location,omitempty"`
	Remote          bool               `bson:"remote" json:"remote"`
	ContactName     string             `bson:"contact_name,omitempty" json:"contact_name,omitempty"`
	ContactEmail    string             `bson:"contact_email" json:"contact_email"`
	ContactPhone    string             `bson:"contact_phone,omitempty" json:"contact_phone,omitempty"`
	Images          []string           `bson:"images" json:"images"`
	SubmittedBy     primitive.ObjectID `bson:"submitted_by" json:"submitted_by"`
	Status          string             `bson:"status" json:"status"` // pending, approved, rejected
	IsVisible       bool               `bson:"is_visible" json:"is_visible"`
	RejectionReason string             `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	AuditTrail      []AuditEntry       `bson:"audit_trail" json:"audit_trail"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

func (b SubmissionBase) OwnedBy(userID primitive.ObjectID) bool {
	return !userID.IsZero() && b.SubmittedBy == userID
}

func (b SubmissionBase) IsPublic() bool {
	return b.Status == StatusApproved && b.IsVisible
}

type ProjectSubmission struct {
	SubmissionBase   `bson:",inline"`
	StartDate        *time.Time `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate          *time.Time `bson:"end_date,omitempty" json:"end_date,omitempty"`
	VolunteersNeeded int        `bson:"volunteers_needed" json:"volunteers_needed"`
	Skills           []string   `bson:"skills" json:"skills"`
	Commitment       string     `bson:"commitment,omitempty" json:"commitment,omitempty"` // e.g. "4h/week"
}
