package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Application statuses
const (
	ApplicationPending   = "pending"
	ApplicationAccepted  = "accepted"
	ApplicationRejected  = "rejected"
	ApplicationWithdrawn = "withdrawn"
)

type ProjectApplicationEntry struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID    primitive.ObjectID `bson:"project_id" json:"project_id"`
	ProjectTitle string             `bson:"project_title" json:"project_title"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Motivation   string             `bson:"motivation,omitempty" json:"motivation,omitempty"`
	Skills       []string           `bson:"skills" json:"skills"`
	Availability string             `bson:"availability,omitempty" json:"availability,omitempty"`
	Status       string             `bson:"status" json:"status"` // pending, accepted, rejected, withdrawn
	AuditTrail   []AuditEntry       `bson:"audit_trail" json:"audit_trail"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// Active reports whether the application still blocks a new one for the same project.
func (a ProjectApplicationEntry) Active() bool {
	return a.Status == ApplicationPending || a.Status == ApplicationAccepted
}
