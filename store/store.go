package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-hub-go/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
	ErrConflict  = errors.New("record changed concurrently")
)

// Collection names
const (
	colUsers         = "users"
	colProjects      = "projects"
	colEvents        = "events"
	colApplications  = "applications"
	colRegistrations = "registrations"
	colEditRequests  = "edit_requests"
	colReminders     = "reminders"
	colKB            = "kb_entries"
	colNotifications = "notifications"
)

type findOpts struct {
	sort  string
	asc   bool
	limit int64
}

// collection is the minimal document API both backends provide. Repositories are
// written once against it.
type collection[T any] interface {
	insert(ctx context.Context, doc *T) error
	findOne(ctx context.Context, filter bson.M) (*T, error)
	find(ctx context.Context, filter bson.M, opts findOpts) ([]T, error)
	// update applies $set and $push to the first document matching filter.
	update(ctx context.Context, filter bson.M, set bson.M, push bson.M) error
	// increment adds by to a numeric field of the first document matching filter.
	increment(ctx context.Context, filter bson.M, field string, by int) error
	remove(ctx context.Context, filter bson.M) (int64, error)
	count(ctx context.Context, filter bson.M) (int64, error)
}

// StatusChange moves a record to status To when its current status is one of From
// (any status when From is empty) and appends Entry to its audit trail.
type StatusChange struct {
	From  []string
	To    string
	Set   bson.M
	Entry models.AuditEntry
}

type SubmissionFilter struct {
	Status      string
	VisibleOnly bool
	SubmittedBy primitive.ObjectID
}

func (f SubmissionFilter) query() bson.M {
	q := bson.M{}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.VisibleOnly {
		q["is_visible"] = true
		q["status"] = models.StatusApproved
	}
	if !f.SubmittedBy.IsZero() {
		q["submitted_by"] = f.SubmittedBy
	}
	return q
}

type EntryFilter struct {
	TargetID primitive.ObjectID
	UserID   primitive.ObjectID
	Statuses []string
	Oldest   bool // oldest first instead of newest first
}

type EditRequestFilter struct {
	Status      string
	RequestedBy primitive.ObjectID
	TargetID    primitive.ObjectID
}

type SubmissionRepository[T any] interface {
	Create(ctx context.Context, doc *T) error
	Get(ctx context.Context, id primitive.ObjectID) (*T, error)
	List(ctx context.Context, f SubmissionFilter) ([]T, error)
	Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	Transition(ctx context.Context, id primitive.ObjectID, ch StatusChange) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type Projects = SubmissionRepository[models.ProjectSubmission]

type Events interface {
	SubmissionRepository[models.EventSubmission]
	// ClaimSeats takes n seats of an event if they fit under its capacity
	// (0 = unlimited). ok is false when the event is full.
	ClaimSeats(ctx context.Context, id primitive.ObjectID, n int) (ok bool, err error)
	ReleaseSeats(ctx context.Context, id primitive.ObjectID, n int) error
}

type EntryRepository[T any] interface {
	Create(ctx context.Context, doc *T) error
	Get(ctx context.Context, id primitive.ObjectID) (*T, error)
	List(ctx context.Context, f EntryFilter) ([]T, error)
	Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	Transition(ctx context.Context, id primitive.ObjectID, ch StatusChange) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteForTarget(ctx context.Context, targetID primitive.ObjectID) (int64, error)
}

type Applications = EntryRepository[models.ProjectApplicationEntry]

type Registrations interface {
	EntryRepository[models.EventRegistrationEntry]
	// Seats sums the places taken by registered (not waitlisted) entries of an event.
	Seats(ctx context.Context, eventID primitive.ObjectID) (int, error)
}

type Users interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type EditRequests interface {
	Create(ctx context.Context, er *models.EditRequest) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.EditRequest, error)
	List(ctx context.Context, f EditRequestFilter) ([]models.EditRequest, error)
	// Decide updates a request that is still pending; ErrConflict otherwise.
	Decide(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	// Reopen puts a decided request back to pending, undoing a Decide whose
	// follow-up failed.
	Reopen(ctx context.Context, id primitive.ObjectID, from string) error
}

type Reminders interface {
	Create(ctx context.Context, r *models.Reminder) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Reminder, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Reminder, error)
	// Due returns unsent, unlocked reminders due at or before now with fewer
	// than maxAttempts delivery attempts, oldest first.
	Due(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.Reminder, error)
	// Claim counts a delivery attempt and locks the reminder until the given
	// time. ErrNotFound means another worker claimed it first.
	Claim(ctx context.Context, id primitive.ObjectID, attempts int, now, until time.Time) error
	Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteUnsentForTarget(ctx context.Context, targetID primitive.ObjectID) (int64, error)
	// DeleteUnsent removes a user's unsent reminders for targetID, or all of
	// them when targetID is zero.
	DeleteUnsent(ctx context.Context, userID, targetID primitive.ObjectID) (int64, error)
}

type KnowledgeBase interface {
	Create(ctx context.Context, e *models.KBEntry) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.KBEntry, error)
	FindByQuestion(ctx context.Context, question string) (*models.KBEntry, error)
	List(ctx context.Context) ([]models.KBEntry, error)
	Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type Notifications interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID primitive.ObjectID) error
}

// Store bundles every repository of one backend.
type Store struct {
	Users         Users
	Projects      Projects
	Events        Events
	Applications  Applications
	Registrations Registrations
	EditRequests  EditRequests
	Reminders     Reminders
	KB            KnowledgeBase
	Notifications Notifications

	ping func(ctx context.Context) error
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}
