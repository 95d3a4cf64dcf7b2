package store

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-hub-go/models"
)

var errMissingID = errors.New("document has no _id")

// memCollection keeps documents in their BSON map form so that filters, $set and
// $push behave like they do against mongo. Only the operators the repositories
// use are supported.
type memCollection[T any] struct {
	mu     sync.RWMutex
	docs   map[primitive.ObjectID]bson.M
	unique []string
}

func newMemCollection[T any](unique ...string) *memCollection[T] {
	return &memCollection[T]{docs: make(map[primitive.ObjectID]bson.M), unique: unique}
}

// NewMemory returns a Store that keeps everything in process memory.
func NewMemory() *Store {
	return newStore(
		newMemCollection[models.User]("email"),
		newMemCollection[models.ProjectSubmission](),
		newMemCollection[models.EventSubmission](),
		newMemCollection[models.ProjectApplicationEntry](),
		newMemCollection[models.EventRegistrationEntry](),
		newMemCollection[models.EditRequest](),
		newMemCollection[models.Reminder](),
		newMemCollection[models.KBEntry](),
		newMemCollection[models.Notification](),
	)
}

func toM(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromM[T any](m bson.M) (T, error) {
	var out T
	raw, err := bson.Marshal(m)
	if err != nil {
		return out, err
	}
	err = bson.Unmarshal(raw, &out)
	return out, err
}

func (c *memCollection[T]) insert(_ context.Context, doc *T) error {
	m, err := toM(doc)
	if err != nil {
		return err
	}
	id, ok := m["_id"].(primitive.ObjectID)
	if !ok || id.IsZero() {
		return errMissingID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return ErrDuplicate
	}
	if c.violatesUnique(id, m) {
		return ErrDuplicate
	}
	c.docs[id] = m
	return nil
}

func (c *memCollection[T]) violatesUnique(id primitive.ObjectID, m bson.M) bool {
	for _, field := range c.unique {
		for otherID, other := range c.docs {
			if otherID != id && reflect.DeepEqual(other[field], m[field]) {
				return true
			}
		}
	}
	return false
}

// matching returns the documents matching filter, sorted by opts.
func (c *memCollection[T]) matching(filter bson.M, opts findOpts) ([]bson.M, error) {
	canon, err := toM(filter)
	if err != nil {
		return nil, err
	}
	var out []bson.M
	for _, doc := range c.docs {
		if matches(doc, canon) {
			out = append(out, doc)
		}
	}

	key := opts.sort
	if key == "" {
		key = "created_at"
	}
	sort.SliceStable(out, func(i, j int) bool {
		cmp, _ := compare(out[i][key], out[j][key])
		if cmp == 0 {
			// stable order for equal keys
			a, _ := out[i]["_id"].(primitive.ObjectID)
			b, _ := out[j]["_id"].(primitive.ObjectID)
			cmp = strings.Compare(a.Hex(), b.Hex())
		}
		if opts.asc || opts.sort == "" {
			return cmp < 0
		}
		return cmp > 0
	})
	if opts.limit > 0 && int64(len(out)) > opts.limit {
		out = out[:opts.limit]
	}
	return out, nil
}

func (c *memCollection[T]) findOne(_ context.Context, filter bson.M) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs, err := c.matching(filter, findOpts{asc: true, limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	out, err := fromM[T](docs[0])
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *memCollection[T]) find(_ context.Context, filter bson.M, opts findOpts) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs, err := c.matching(filter, opts)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := fromM[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *memCollection[T]) update(_ context.Context, filter bson.M, set bson.M, push bson.M) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.matching(filter, findOpts{asc: true, limit: 1})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return ErrNotFound
	}
	doc := bson.M{}
	for k, v := range docs[0] {
		doc[k] = v
	}
	for k, v := range set {
		doc[k] = v
	}
	for k, v := range push {
		arr, _ := doc[k].(primitive.A)
		next := make(primitive.A, 0, len(arr)+1)
		next = append(next, arr...)
		doc[k] = append(next, v)
	}

	updated, err := toM(doc)
	if err != nil {
		return err
	}
	id, _ := updated["_id"].(primitive.ObjectID)
	if c.violatesUnique(id, updated) {
		return ErrDuplicate
	}
	c.docs[id] = updated
	return nil
}

func (c *memCollection[T]) increment(_ context.Context, filter bson.M, field string, by int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.matching(filter, findOpts{asc: true, limit: 1})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return ErrNotFound
	}
	doc := bson.M{}
	for k, v := range docs[0] {
		doc[k] = v
	}
	current, _ := toFloat(doc[field])
	doc[field] = int64(current) + int64(by)

	id, _ := doc["_id"].(primitive.ObjectID)
	c.docs[id] = doc
	return nil
}

func (c *memCollection[T]) remove(_ context.Context, filter bson.M) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.matching(filter, findOpts{})
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		id, _ := doc["_id"].(primitive.ObjectID)
		delete(c.docs, id)
	}
	return int64(len(docs)), nil
}

func (c *memCollection[T]) count(_ context.Context, filter bson.M) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs, err := c.matching(filter, findOpts{})
	return int64(len(docs)), err
}

func asOperators(v interface{}) (bson.M, bool) {
	switch ops := v.(type) {
	case bson.M:
		for k := range ops {
			if !strings.HasPrefix(k, "$") {
				return nil, false
			}
		}
		return ops, len(ops) > 0
	case bson.D:
		m := bson.M{}
		for _, e := range ops {
			if !strings.HasPrefix(e.Key, "$") {
				return nil, false
			}
			m[e.Key] = e.Value
		}
		return m, len(m) > 0
	}
	return nil, false
}

func matches(doc, filter bson.M) bool {
	for field, cond := range filter {
		value, present := doc[field]
		if ops, ok := asOperators(cond); ok {
			for op, arg := range ops {
				if !matchOperator(value, present, op, arg) {
					return false
				}
			}
			continue
		}
		if !equalOrContains(value, cond) {
			return false
		}
	}
	return true
}

func matchOperator(value interface{}, present bool, op string, arg interface{}) bool {
	switch op {
	case "$in":
		list, _ := arg.(primitive.A)
		for _, candidate := range list {
			if equalOrContains(value, candidate) {
				return true
			}
		}
		return false
	case "$ne":
		return !equalOrContains(value, arg)
	case "$lt", "$lte", "$gt", "$gte":
		if !present {
			return false
		}
		cmp, ok := compare(value, arg)
		if !ok {
			return false
		}
		switch op {
		case "$lt":
			return cmp < 0
		case "$lte":
			return cmp <= 0
		case "$gt":
			return cmp > 0
		default:
			return cmp >= 0
		}
	}
	return false
}

// equalOrContains mirrors mongo equality: an array field matches when one of its
// elements equals the condition.
func equalOrContains(value, cond interface{}) bool {
	if arr, ok := value.(primitive.A); ok {
		if _, condIsArr := cond.(primitive.A); !condIsArr {
			for _, el := range arr {
				if equalOrContains(el, cond) {
					return true
				}
			}
			return false
		}
	}
	if a, ok := toFloat(value); ok {
		if b, ok := toFloat(cond); ok {
			return a == b
		}
	}
	return reflect.DeepEqual(value, cond)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compare orders two canonical BSON values. Missing values sort first.
func compare(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
	}
	switch x := a.(type) {
	case primitive.DateTime:
		if y, ok := b.(primitive.DateTime); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(strings.ToLower(x), strings.ToLower(y)), true
		}
	case primitive.ObjectID:
		if y, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(x.Hex(), y.Hex()), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}
