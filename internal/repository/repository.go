// Package repository maps each board operation onto a single document store
// call or live subscription. It owns no state; the only call that combines
// anything is current-user resolution for member-scoped queries.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ytakahashi/boardsync/internal/auth"
	"github.com/ytakahashi/boardsync/internal/store"
	"github.com/ytakahashi/boardsync/internal/stream"
)

const (
	CollectionUsers      = "users"
	CollectionBoards     = "boards"
	CollectionLists      = "lists"
	CollectionCards      = "cards"
	CollectionChecklists = "checklists"
	CollectionComments   = "comments"

	// BackgroundPrefix is the object store folder for board backgrounds.
	BackgroundPrefix = "board_backgrounds/"

	tracerName = "github.com/ytakahashi/boardsync/internal/repository"
)

var (
	ErrNotFound        = store.ErrNotFound
	ErrUnauthenticated = auth.ErrUnauthenticated
	ErrValidation      = errors.New("validation failed")
)

// ValidationError wraps ErrValidation with a user-facing message.
func ValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

type Repository struct {
	docs     store.DocumentStore
	objects  store.ObjectStore
	identity auth.Resolver
	tracer   trace.Tracer

	now   func() time.Time
	newID func() string
}

type Option func(*Repository)

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

func New(docs store.DocumentStore, objects store.ObjectStore, identity auth.Resolver, opts ...Option) *Repository {
	r := &Repository{
		docs:     docs,
		objects:  objects,
		identity: identity,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "repository."+op, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// traceWatch records the opening of a live subscription.
func (r *Repository) traceWatch(ctx context.Context, op string, attrs ...attribute.KeyValue) {
	_, span := r.start(ctx, op, attrs...)
	span.End()
}

func (r *Repository) currentUser(ctx context.Context) (auth.Identity, error) {
	id, err := r.identity.CurrentUser(ctx)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("failed to resolve current user: %w", err)
	}
	return id, nil
}

func decode[T any](snap store.Snapshot, setID func(*T, string)) (T, error) {
	var v T
	if !snap.Exists() {
		return v, fmt.Errorf("document %s: %w", snap.ID(), store.ErrNotFound)
	}
	if err := snap.DataTo(&v); err != nil {
		return v, fmt.Errorf("failed to unmarshal %s: %w", snap.ID(), err)
	}
	setID(&v, snap.ID())
	return v, nil
}

func decodeAll[T any](snaps []store.Snapshot, setID func(*T, string)) ([]T, error) {
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		v, err := decode(snap, setID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Repository) get(ctx context.Context, collection, id string) (store.Snapshot, error) {
	snap, err := r.docs.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if !snap.Exists() {
		return nil, fmt.Errorf("document %s/%s: %w", collection, id, store.ErrNotFound)
	}
	return snap, nil
}

func watchDocument[T any](ctx context.Context, docs store.DocumentStore, collection, id string, setID func(*T, string)) <-chan stream.Update[T] {
	return stream.Subscribe[T](ctx, func(ctx context.Context, emit func(T, error)) func() {
		return docs.WatchDocument(ctx, collection, id, func(snap store.Snapshot, err error) {
			if err != nil {
				var zero T
				emit(zero, err)
				return
			}
			emit(decode(snap, setID))
		})
	})
}

func watchQuery[T any](ctx context.Context, docs store.DocumentStore, q store.Query, setID func(*T, string)) <-chan stream.Update[[]T] {
	return stream.Subscribe[[]T](ctx, func(ctx context.Context, emit func([]T, error)) func() {
		return docs.WatchQuery(ctx, q, func(snaps []store.Snapshot, err error) {
			if err != nil {
				emit(nil, err)
				return
			}
			emit(decodeAll(snaps, setID))
		})
	})
}

// failed is a subscription that ends immediately with err.
func failed[T any](err error) <-chan stream.Update[T] {
	ch := make(chan stream.Update[T], 1)
	ch <- stream.Update[T]{Err: err}
	close(ch)
	return ch
}
