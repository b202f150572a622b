// Package store declares the remote collaborators the repository is built on:
// a document database with live subscriptions and an object store for
// uploaded images. Implementations live in internal/services (Firestore and
// Firebase Storage) and internal/store/memory.
package store

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a document or object does not exist.
	ErrNotFound = errors.New("not found")
)

const (
	OpEqual         = "=="
	OpArrayContains = "array-contains"
)

// Filter is a single field predicate of a collection query.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query selects documents of one collection. Filters are ANDed.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field, op string, value any) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// Snapshot is one read of a document.
type Snapshot interface {
	ID() string
	Exists() bool
	DataTo(v any) error
}

// Update sets one field path. Value may be one of the sentinels below.
type Update struct {
	Path  string
	Value any
}

// ArrayUnion adds elements to an array field that are not already present.
type ArrayUnion []any

// ArrayRemove removes all instances of the elements from an array field.
type ArrayRemove []any

type serverTimestamp struct{}

// ServerTimestamp is replaced with the store's commit time.
var ServerTimestamp any = serverTimestamp{}

// Delete removes the field.
var Delete any = deleteField{}

type deleteField struct{}

// DocumentFunc receives every delivery of a document subscription. A non-nil
// error is terminal: no further calls follow it.
type DocumentFunc func(Snapshot, error)

// QueryFunc receives every delivery of a query subscription. A non-nil error
// is terminal.
type QueryFunc func([]Snapshot, error)

// DocumentStore is a schemaless document database.
//
// Watch* calls deliver the current state immediately and then on every
// change, from a goroutine owned by the store. The returned func stops the
// subscription; it is safe to call more than once.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	Find(ctx context.Context, q Query) ([]Snapshot, error)
	Add(ctx context.Context, collection string, data any) (string, error)
	Set(ctx context.Context, collection, id string, data any) error
	Merge(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, updates []Update) error
	Delete(ctx context.Context, collection, id string) error

	WatchDocument(ctx context.Context, collection, id string, fn DocumentFunc) (stop func())
	WatchQuery(ctx context.Context, q Query, fn QueryFunc) (stop func())
}

// ObjectStore keeps uploaded blobs.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) error
	DownloadURL(ctx context.Context, key string) (string, error)
}
