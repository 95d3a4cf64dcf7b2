// Package workflow holds the status rules for submissions, applications and
// registrations. Every allowed move is returned as a store.StatusChange that
// carries exactly one audit entry.
package workflow

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrReasonRequired    = errors.New("a reason is required")
	ErrVisibility        = errors.New("only approved submissions can be visible")
	ErrFieldNotEditable  = errors.New("field cannot be edited")
	ErrInvalidValue      = errors.New("invalid value")
)

// Review decisions
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
	DecisionAccept  = "accept"
)

func entry(action, from, to string, by primitive.ObjectID, note string, now time.Time) models.AuditEntry {
	return models.AuditEntry{Action: action, FromStatus: from, ToStatus: to, By: by, Note: note, At: now.UTC()}
}

// Submitted is the first audit entry of a new submission.
func Submitted(by primitive.ObjectID, now time.Time) models.AuditEntry {
	return entry(models.ActionSubmitted, "", models.StatusPending, by, "", now)
}

// Review moves a submission on an admin decision. Approving makes it visible,
// rejecting hides it and stores the reason.
func Review(current, decision, reason string, by primitive.ObjectID, now time.Time) (store.StatusChange, error) {
	switch decision {
	case DecisionApprove:
		if current != models.StatusPending && current != models.StatusRejected {
			return store.StatusChange{}, ErrInvalidTransition
		}
		return store.StatusChange{
			From:  []string{current},
			To:    models.StatusApproved,
			Set:   bson.M{"is_visible": true, "rejection_reason": ""},
			Entry: entry(models.ActionApproved, current, models.StatusApproved, by, reason, now),
		}, nil
	case DecisionReject:
		if current != models.StatusPending && current != models.StatusApproved {
			return store.StatusChange{}, ErrInvalidTransition
		}
		if reason == "" {
			return store.StatusChange{}, ErrReasonRequired
		}
		return store.StatusChange{
			From:  []string{current},
			To:    models.StatusRejected,
			Set:   bson.M{"is_visible": false, "rejection_reason": reason},
			Entry: entry(models.ActionRejected, current, models.StatusRejected, by, reason, now),
		}, nil
	}
	return store.StatusChange{}, ErrInvalidTransition
}

// Resubmit sends a rejected submission back to review.
func Resubmit(current string, by primitive.ObjectID, now time.Time) (store.StatusChange, error) {
	if current != models.StatusRejected {
		return store.StatusChange{}, ErrInvalidTransition
	}
	return store.StatusChange{
		From:  []string{current},
		To:    models.StatusPending,
		Set:   bson.M{"is_visible": false},
		Entry: entry(models.ActionResubmitted, current, models.StatusPending, by, "", now),
	}, nil
}

// SetVisibility shows or hides an approved submission. The status is unchanged.
func SetVisibility(current string, visible, wantVisible bool, by primitive.ObjectID, now time.Time) (store.StatusChange, error) {
	if wantVisible && current != models.StatusApproved {
		return store.StatusChange{}, ErrVisibility
	}
	if visible == wantVisible {
		return store.StatusChange{}, ErrInvalidTransition
	}
	action := models.ActionHidden
	if wantVisible {
		action = models.ActionShown
	}
	return store.StatusChange{
		From:  []string{current},
		To:    current,
		Set:   bson.M{"is_visible": wantVisible},
		Entry: entry(action, current, current, by, "", now),
	}, nil
}

// ApplyEdit merges approved edit-request changes into a record without moving
// its status.
func ApplyEdit(current string, changes bson.M, note string, by primitive.ObjectID, now time.Time) store.StatusChange {
	return store.StatusChange{
		From:  []string{current},
		To:    current,
		Set:   changes,
		Entry: entry(models.ActionEditApplied, current, current, by, note, now),
	}
}

// Edited records a direct owner or admin edit.
func Edited(current string, fields bson.M, by primitive.ObjectID, now time.Time) store.StatusChange {
	return store.StatusChange{
		From:  []string{current},
		To:    current,
		Set:   fields,
		Entry: entry(models.ActionEdited, current, current, by, "", now),
	}
}

// ---------------- APPLICATIONS ----------------

func Applied(by primitive.ObjectID, now time.Time) models.AuditEntry {
	return entry(models.ActionApplied, "", models.ApplicationPending, by, "", now)
}

// DecideApplication accepts a pending application or rejects a pending or
// accepted one.
func DecideApplication(current, decision, note string, by primitive.ObjectID, now time.Time) (store.StatusChange, error) {
	switch decision {
	case DecisionAccept:
		if current != models.ApplicationPending {
			return store.StatusChange{}, ErrInvalidTransition
		}
		return store.StatusChange{
			From:  []string{current},
			To:    models.ApplicationAccepted,
			Entry: entry(models.ActionAccepted, current, models.ApplicationAccepted, by, note, now),
		}, nil
	case DecisionReject:
		if current != models.ApplicationPending && current != models.ApplicationAccepted {
			return store.StatusChange{}, ErrInvalidTransition
		}
		return store.StatusChange{
			From:  []string{current},
			To:    models.ApplicationRejected,
			Entry: entry(models.ActionRejected, current, models.ApplicationRejected, by, note, now),
		}, nil
	}
	return store.StatusChange{}, ErrInvalidTransition
}

func Withdraw(current string, by primitive.ObjectID, now time.Time) (store.StatusChange, error) {
	if current != models.ApplicationPending && current != models.ApplicationAccepted {
		return store.StatusChange{}, ErrInvalidTransition
	}
	return store.StatusChange{
		From:  []string{current},
		To:    models.ApplicationWithdrawn,
		Entry: entry(models.ActionWithdrawn, current, models.ApplicationWithdrawn, by, "", now),
	}, nil
}

// ---------------- REGISTRATIONS ----------------

func Registered(status string, by primitive.ObjectID, now time.Time) models.AuditEntry {
	action := models.ActionRegistered
	if status == models.RegistrationWaitlisted {
		action = models.ActionWaitlisted
	}
	return entry(action, "", status, by, "", now)
}

func CancelRegistration(current string, by primitive.ObjectID, now time.Time) (store.StatusChange, error) {
	if current != models.RegistrationRegistered && current != models.RegistrationWaitlisted {
		return store.StatusChange{}, ErrInvalidTransition
	}
	return store.StatusChange{
		From:  []string{current},
		To:    models.RegistrationCancelled,
		Entry: entry(models.ActionCancelled, current, models.RegistrationCancelled, by, "", now),
	}, nil
}

func Promote(by primitive.ObjectID, now time.Time) store.StatusChange {
	return store.StatusChange{
		From:  []string{models.RegistrationWaitlisted},
		To:    models.RegistrationRegistered,
		Entry: entry(models.ActionPromoted, models.RegistrationWaitlisted, models.RegistrationRegistered, by, "", now),
	}
}
