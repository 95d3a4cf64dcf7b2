package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-hub-go/models"
)

func withUpdatedAt(fields bson.M) bson.M {
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = time.Now().UTC()
	}
	return set
}

func getByID[T any](ctx context.Context, c collection[T], id primitive.ObjectID) (*T, error) {
	return c.findOne(ctx, bson.M{"_id": id})
}

func updateByID[T any](ctx context.Context, c collection[T], id primitive.ObjectID, fields bson.M) error {
	if len(fields) == 0 {
		return nil
	}
	return c.update(ctx, bson.M{"_id": id}, withUpdatedAt(fields), nil)
}

func deleteByID[T any](ctx context.Context, c collection[T], id primitive.ObjectID) error {
	n, err := c.remove(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func transition[T any](ctx context.Context, c collection[T], id primitive.ObjectID, ch StatusChange) error {
	filter := bson.M{"_id": id}
	if len(ch.From) > 0 {
		filter["status"] = bson.M{"$in": ch.From}
	}
	at := ch.Entry.At
	if at.IsZero() {
		at = time.Now().UTC()
		ch.Entry.At = at
	}
	set := bson.M{"status": ch.To, "updated_at": at}
	for k, v := range ch.Set {
		set[k] = v
	}

	err := c.update(ctx, filter, set, bson.M{"audit_trail": ch.Entry})
	if errors.Is(err, ErrNotFound) && len(ch.From) > 0 {
		if _, getErr := getByID(ctx, c, id); getErr == nil {
			return ErrConflict
		}
	}
	return err
}

// ---------------- SUBMISSIONS ----------------

type submissions[T any] struct {
	c collection[T]
}

func (r submissions[T]) Create(ctx context.Context, doc *T) error { return r.c.insert(ctx, doc) }

func (r submissions[T]) Get(ctx context.Context, id primitive.ObjectID) (*T, error) {
	return getByID(ctx, r.c, id)
}

func (r submissions[T]) List(ctx context.Context, f SubmissionFilter) ([]T, error) {
	return r.c.find(ctx, f.query(), findOpts{sort: "created_at"})
}

func (r submissions[T]) Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	return updateByID(ctx, r.c, id, fields)
}

func (r submissions[T]) Transition(ctx context.Context, id primitive.ObjectID, ch StatusChange) error {
	return transition(ctx, r.c, id, ch)
}

func (r submissions[T]) Delete(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, r.c, id)
}

type events struct {
	submissions[models.EventSubmission]
}

// claimAttempts bounds the retries when the capacity or seat count of an event
// moves between the read and the conditional increment.
const claimAttempts = 5

func (r events) ClaimSeats(ctx context.Context, id primitive.ObjectID, n int) (bool, error) {
	for i := 0; i < claimAttempts; i++ {
		e, err := r.Get(ctx, id)
		if err != nil {
			return false, err
		}
		filter := bson.M{"_id": id, "capacity": e.Capacity}
		if e.Capacity > 0 {
			if e.SeatsTaken+n > e.Capacity {
				return false, nil
			}
			filter["seats_taken"] = bson.M{"$lte": e.Capacity - n}
		}
		err = r.c.increment(ctx, filter, "seats_taken", n)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return false, err
		}
	}
	return false, ErrConflict
}

func (r events) ReleaseSeats(ctx context.Context, id primitive.ObjectID, n int) error {
	if n <= 0 {
		return nil
	}
	return r.c.increment(ctx, bson.M{"_id": id, "seats_taken": bson.M{"$gte": n}}, "seats_taken", -n)
}

// ---------------- ENTRIES ----------------

// entries serves applications and registrations; targetField names the parent reference.
type entries[T any] struct {
	c           collection[T]
	targetField string
}

func (r entries[T]) Create(ctx context.Context, doc *T) error { return r.c.insert(ctx, doc) }

func (r entries[T]) Get(ctx context.Context, id primitive.ObjectID) (*T, error) {
	return getByID(ctx, r.c, id)
}

func (r entries[T]) List(ctx context.Context, f EntryFilter) ([]T, error) {
	q := bson.M{}
	if !f.TargetID.IsZero() {
		q[r.targetField] = f.TargetID
	}
	if !f.UserID.IsZero() {
		q["user_id"] = f.UserID
	}
	if len(f.Statuses) > 0 {
		q["status"] = bson.M{"$in": f.Statuses}
	}
	return r.c.find(ctx, q, findOpts{sort: "created_at", asc: f.Oldest})
}

func (r entries[T]) Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	return updateByID(ctx, r.c, id, fields)
}

func (r entries[T]) Transition(ctx context.Context, id primitive.ObjectID, ch StatusChange) error {
	return transition(ctx, r.c, id, ch)
}

func (r entries[T]) Delete(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, r.c, id)
}

func (r entries[T]) DeleteForTarget(ctx context.Context, targetID primitive.ObjectID) (int64, error) {
	return r.c.remove(ctx, bson.M{r.targetField: targetID})
}

type registrations struct {
	entries[models.EventRegistrationEntry]
}

func (r registrations) Seats(ctx context.Context, eventID primitive.ObjectID) (int, error) {
	regs, err := r.c.find(ctx, bson.M{"event_id": eventID, "status": models.RegistrationRegistered}, findOpts{})
	if err != nil {
		return 0, err
	}
	seats := 0
	for _, reg := range regs {
		seats += reg.Seats()
	}
	return seats, nil
}

// ---------------- USERS ----------------

type users struct {
	c collection[models.User]
}

func (r users) Create(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return r.c.insert(ctx, u)
}

func (r users) Get(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return getByID(ctx, r.c, id)
}

func (r users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.c.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r users) List(ctx context.Context) ([]models.User, error) {
	return r.c.find(ctx, bson.M{}, findOpts{sort: "created_at"})
}

func (r users) Count(ctx context.Context) (int64, error) {
	return r.c.count(ctx, bson.M{})
}

func (r users) Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	return updateByID(ctx, r.c, id, fields)
}

func (r users) Delete(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, r.c, id)
}

// ---------------- EDIT REQUESTS ----------------

type editRequests struct {
	c collection[models.EditRequest]
}

func (r editRequests) Create(ctx context.Context, er *models.EditRequest) error {
	return r.c.insert(ctx, er)
}

func (r editRequests) Get(ctx context.Context, id primitive.ObjectID) (*models.EditRequest, error) {
	return getByID(ctx, r.c, id)
}

func (r editRequests) List(ctx context.Context, f EditRequestFilter) ([]models.EditRequest, error) {
	q := bson.M{}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if !f.RequestedBy.IsZero() {
		q["requested_by"] = f.RequestedBy
	}
	if !f.TargetID.IsZero() {
		q["target_id"] = f.TargetID
	}
	return r.c.find(ctx, q, findOpts{sort: "created_at"})
}

func (r editRequests) Decide(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	err := r.c.update(ctx, bson.M{"_id": id, "status": models.EditPending}, withUpdatedAt(fields), nil)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.Get(ctx, id); getErr == nil {
			return ErrConflict
		}
	}
	return err
}

func (r editRequests) Reopen(ctx context.Context, id primitive.ObjectID, from string) error {
	return r.c.update(ctx, bson.M{"_id": id, "status": from}, withUpdatedAt(bson.M{
		"status":      models.EditPending,
		"reviewed_by": primitive.NilObjectID,
		"review_note": "",
		"reviewed_at": nil,
	}), nil)
}

// ---------------- REMINDERS ----------------

type reminders struct {
	c collection[models.Reminder]
}

func (r reminders) Create(ctx context.Context, rem *models.Reminder) error {
	return r.c.insert(ctx, rem)
}

func (r reminders) Get(ctx context.Context, id primitive.ObjectID) (*models.Reminder, error) {
	return getByID(ctx, r.c, id)
}

func (r reminders) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Reminder, error) {
	return r.c.find(ctx, bson.M{"user_id": userID}, findOpts{sort: "due_at", asc: true})
}

func (r reminders) Due(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.Reminder, error) {
	q := bson.M{
		"sent":         false,
		"due_at":       bson.M{"$lte": now},
		"locked_until": bson.M{"$lte": now},
	}
	if maxAttempts > 0 {
		q["attempts"] = bson.M{"$lt": maxAttempts}
	}
	return r.c.find(ctx, q, findOpts{sort: "due_at", asc: true, limit: int64(limit)})
}

func (r reminders) Claim(ctx context.Context, id primitive.ObjectID, attempts int, now, until time.Time) error {
	filter := bson.M{
		"_id":          id,
		"sent":         false,
		"attempts":     attempts,
		"locked_until": bson.M{"$lte": now},
	}
	return r.c.update(ctx, filter, bson.M{
		"attempts":     attempts + 1,
		"locked_until": until,
		"updated_at":   now,
	}, nil)
}

func (r reminders) Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	return updateByID(ctx, r.c, id, fields)
}

func (r reminders) Delete(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, r.c, id)
}

func (r reminders) DeleteUnsentForTarget(ctx context.Context, targetID primitive.ObjectID) (int64, error) {
	return r.c.remove(ctx, bson.M{"target_id": targetID, "sent": false})
}

func (r reminders) DeleteUnsent(ctx context.Context, userID, targetID primitive.ObjectID) (int64, error) {
	q := bson.M{"user_id": userID, "sent": false}
	if !targetID.IsZero() {
		q["target_id"] = targetID
	}
	return r.c.remove(ctx, q)
}

// ---------------- KNOWLEDGE BASE ----------------

type knowledgeBase struct {
	c collection[models.KBEntry]
}

func (r knowledgeBase) Create(ctx context.Context, e *models.KBEntry) error {
	return r.c.insert(ctx, e)
}

func (r knowledgeBase) Get(ctx context.Context, id primitive.ObjectID) (*models.KBEntry, error) {
	return getByID(ctx, r.c, id)
}

func (r knowledgeBase) FindByQuestion(ctx context.Context, question string) (*models.KBEntry, error) {
	return r.c.findOne(ctx, bson.M{"question": question})
}

func (r knowledgeBase) List(ctx context.Context) ([]models.KBEntry, error) {
	return r.c.find(ctx, bson.M{}, findOpts{sort: "created_at"})
}

func (r knowledgeBase) Update(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	return updateByID(ctx, r.c, id, fields)
}

func (r knowledgeBase) Delete(ctx context.Context, id primitive.ObjectID) error {
	return deleteByID(ctx, r.c, id)
}

// ---------------- NOTIFICATIONS ----------------

type notifications struct {
	c collection[models.Notification]
}

func (r notifications) Create(ctx context.Context, n *models.Notification) error {
	return r.c.insert(ctx, n)
}

func (r notifications) ListByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error) {
	return r.c.find(ctx, bson.M{"user_id": userID}, findOpts{sort: "created_at", limit: int64(limit)})
}

func (r notifications) MarkRead(ctx context.Context, id, userID primitive.ObjectID) error {
	return r.c.update(ctx, bson.M{"_id": id, "user_id": userID}, bson.M{"read": true}, nil)
}

func newStore(
	usersCol collection[models.User],
	projectsCol collection[models.ProjectSubmission],
	eventsCol collection[models.EventSubmission],
	applicationsCol collection[models.ProjectApplicationEntry],
	registrationsCol collection[models.EventRegistrationEntry],
	editRequestsCol collection[models.EditRequest],
	remindersCol collection[models.Reminder],
	kbCol collection[models.KBEntry],
	notificationsCol collection[models.Notification],
) *Store {
	return &Store{
		Users:         users{c: usersCol},
		Projects:      submissions[models.ProjectSubmission]{c: projectsCol},
		Events:        events{submissions[models.EventSubmission]{c: eventsCol}},
		Applications:  entries[models.ProjectApplicationEntry]{c: applicationsCol, targetField: "project_id"},
		Registrations: registrations{entries[models.EventRegistrationEntry]{c: registrationsCol, targetField: "event_id"}},
		EditRequests:  editRequests{c: editRequestsCol},
		Reminders:     reminders{c: remindersCol},
		KB:            knowledgeBase{c: kbCol},
		Notifications: notifications{c: notificationsCol},
	}
}
