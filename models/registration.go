package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Registration statuses
const (
	RegistrationRegistered = "registered"
	RegistrationWaitlisted = "waitlisted"
	RegistrationCancelled  = "cancelled"
)

type EventRegistrationEntry struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID    primitive.ObjectID `bson:"event_id" json:"event_id"`
	EventTitle string             `bson:"event_title" json:"event_title"`
	UserID     primitive.ObjectID `bson:"user_id" json:"user_id"`
	Name       string             `bson:"name" json:"name"`
	Email      string             `bson:"email" json:"email"`
	Phone      string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Guests     int                `bson:"guests" json:"guests"`
	Notes      string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Status     string             `bson:"status" json:"status"` // registered, waitlisted, cancelled
	AuditTrail []AuditEntry       `bson:"audit_trail" json:"audit_trail"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}

// Seats is the number of places the registration takes.
func (r EventRegistrationEntry) Seats() int { return 1 + r.Guests }

func (r EventRegistrationEntry) Active() bool {
	return r.Status == RegistrationRegistered || r.Status == RegistrationWaitlisted
}
