package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	models "github.com/phillip/volunteer-hub-go/models"
)

type mongoCollection[T any] struct {
	col *mongo.Collection
}

func (m mongoCollection[T]) insert(ctx context.Context, doc *T) error {
	if _, err := m.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert into %s: %w", m.col.Name(), err)
	}
	return nil
}

func (m mongoCollection[T]) findOne(ctx context.Context, filter bson.M) (*T, error) {
	var out T
	if err := m.col.FindOne(ctx, filter).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find in %s: %w", m.col.Name(), err)
	}
	return &out, nil
}

func (m mongoCollection[T]) find(ctx context.Context, filter bson.M, o findOpts) ([]T, error) {
	opts := options.Find()
	if o.sort != "" {
		dir := -1
		if o.asc {
			dir = 1
		}
		opts.SetSort(bson.D{{Key: o.sort, Value: dir}})
	}
	if o.limit > 0 {
		opts.SetLimit(o.limit)
	}

	cursor, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", m.col.Name(), err)
	}
	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.col.Name(), err)
	}
	return out, nil
}

func (m mongoCollection[T]) update(ctx context.Context, filter bson.M, set bson.M, push bson.M) error {
	doc := bson.M{}
	if len(set) > 0 {
		doc["$set"] = set
	}
	if len(push) > 0 {
		doc["$push"] = push
	}
	if len(doc) == 0 {
		return nil
	}

	res, err := m.col.UpdateOne(ctx, filter, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update %s: %w", m.col.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m mongoCollection[T]) increment(ctx context.Context, filter bson.M, field string, by int) error {
	res, err := m.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{field: by}})
	if err != nil {
		return fmt.Errorf("update %s: %w", m.col.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m mongoCollection[T]) remove(ctx context.Context, filter bson.M) (int64, error) {
	res, err := m.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", m.col.Name(), err)
	}
	return res.DeletedCount, nil
}

func (m mongoCollection[T]) count(ctx context.Context, filter bson.M) (int64, error) {
	return m.col.CountDocuments(ctx, filter)
}

// NewMongo returns a Store backed by the given database.
func NewMongo(db *mongo.Database) *Store {
	s := newStore(
		mongoCollection[models.User]{col: db.Collection(colUsers)},
		mongoCollection[models.ProjectSubmission]{col: db.Collection(colProjects)},
		mongoCollection[models.EventSubmission]{col: db.Collection(colEvents)},
		mongoCollection[models.ProjectApplicationEntry]{col: db.Collection(colApplications)},
		mongoCollection[models.EventRegistrationEntry]{col: db.Collection(colRegistrations)},
		mongoCollection[models.EditRequest]{col: db.Collection(colEditRequests)},
		mongoCollection[models.Reminder]{col: db.Collection(colReminders)},
		mongoCollection[models.KBEntry]{col: db.Collection(colKB)},
		mongoCollection[models.Notification]{col: db.Collection(colNotifications)},
	)
	s.ping = func(ctx context.Context) error {
		return db.Client().Ping(ctx, readpref.Primary())
	}
	return s
}

// EnsureIndexes creates the indexes the repositories rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	asc := func(keys ...string) bson.D {
		d := bson.D{}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return d
	}

	specs := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: asc("email"), Options: options.Index().SetUnique(true)},
		},
		colProjects: {
			{Keys: asc("status", "is_visible")},
			{Keys: asc("submitted_by")},
		},
		colEvents: {
			{Keys: asc("status", "is_visible")},
			{Keys: asc("submitted_by")},
		},
		colApplications: {
			{Keys: asc("project_id", "user_id")},
		},
		colRegistrations: {
			{Keys: asc("event_id", "status")},
			{Keys: asc("user_id")},
		},
		colEditRequests: {
			{Keys: asc("status", "created_at")},
		},
		colReminders: {
			{Keys: asc("sent", "due_at")},
			{Keys: asc("target_id")},
			{Keys: asc("user_id", "target_id")},
		},
		colKB: {
			{Keys: asc("question")},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for name, idx := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
