package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ytakahashi/boardsync/internal/store"
)

// FirestoreService is the Firestore-backed store.DocumentStore.
type FirestoreService struct {
	client *firestore.Client
}

func NewFirestoreService(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreService, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreService{
		client: client,
	}, nil
}

func (fs *FirestoreService) Close() error {
	return fs.client.Close()
}

type docSnapshot struct {
	id   string
	snap *firestore.DocumentSnapshot
}

func (d docSnapshot) ID() string { return d.id }

func (d docSnapshot) Exists() bool { return d.snap != nil && d.snap.Exists() }

func (d docSnapshot) DataTo(v any) error {
	if !d.Exists() {
		return fmt.Errorf("document %s: %w", d.id, store.ErrNotFound)
	}
	return d.snap.DataTo(v)
}

func (fs *FirestoreService) Get(ctx context.Context, collection, id string) (store.Snapshot, error) {
	snap, err := fs.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, wrapErr(err, "failed to get %s/%s", collection, id)
	}
	return docSnapshot{id: id, snap: snap}, nil
}

func (fs *FirestoreService) Find(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	iter := fs.query(q).Documents(ctx)
	defer iter.Stop()

	var out []store.Snapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s: %w", q.Collection, err)
		}
		out = append(out, docSnapshot{id: doc.Ref.ID, snap: doc})
	}

	return out, nil
}

func (fs *FirestoreService) Add(ctx context.Context, collection string, data any) (string, error) {
	ref, _, err := fs.client.Collection(collection).Add(ctx, toFirestore(data))
	if err != nil {
		return "", fmt.Errorf("failed to add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (fs *FirestoreService) Set(ctx context.Context, collection, id string, data any) error {
	_, err := fs.client.Collection(collection).Doc(id).Set(ctx, toFirestore(data))
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (fs *FirestoreService) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := fs.client.Collection(collection).Doc(id).Set(ctx, toFirestore(fields), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to merge %s/%s: %w", collection, id, err)
	}
	return nil
}

func (fs *FirestoreService) Update(ctx context.Context, collection, id string, updates []store.Update) error {
	fsUpdates := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		fsUpdates = append(fsUpdates, firestore.Update{Path: u.Path, Value: toFirestoreValue(u.Value)})
	}
	_, err := fs.client.Collection(collection).Doc(id).Update(ctx, fsUpdates)
	if err != nil {
		return wrapErr(err, "failed to update %s/%s", collection, id)
	}
	return nil
}

func (fs *FirestoreService) Delete(ctx context.Context, collection, id string) error {
	_, err := fs.client.Collection(collection).Doc(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (fs *FirestoreService) WatchDocument(ctx context.Context, collection, id string, fn store.DocumentFunc) func() {
	ctx, cancel := context.WithCancel(ctx)
	iter := fs.client.Collection(collection).Doc(id).Snapshots(ctx)
	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if stopped(ctx, err) {
					return
				}
				fn(nil, wrapErr(err, "failed to watch %s/%s", collection, id))
				return
			}
			fn(docSnapshot{id: id, snap: snap}, nil)
		}
	}()
	return cancel
}

func (fs *FirestoreService) WatchQuery(ctx context.Context, q store.Query, fn store.QueryFunc) func() {
	ctx, cancel := context.WithCancel(ctx)
	iter := fs.query(q).Snapshots(ctx)
	go func() {
		defer iter.Stop()
		for {
			qs, err := iter.Next()
			if err != nil {
				if stopped(ctx, err) {
					return
				}
				fn(nil, fmt.Errorf("failed to watch %s: %w", q.Collection, err))
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				fn(nil, fmt.Errorf("failed to read %s snapshot: %w", q.Collection, err))
				return
			}
			snaps := make([]store.Snapshot, len(docs))
			for i, doc := range docs {
				snaps[i] = docSnapshot{id: doc.Ref.ID, snap: doc}
			}
			fn(snaps, nil)
		}
	}()
	return cancel
}

func (fs *FirestoreService) query(q store.Query) firestore.Query {
	query := fs.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, f.Op, f.Value)
	}
	if q.OrderBy != "" {
		query = query.OrderBy(q.OrderBy, firestore.Asc)
	}
	return query
}

func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil || err == iterator.Done || status.Code(err) == codes.Canceled
}

func wrapErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w", msg, store.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func toFirestore(data any) any {
	fields, ok := data.(map[string]any)
	if !ok {
		return data
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreValue(v any) any {
	switch t := v.(type) {
	case store.ArrayUnion:
		return firestore.ArrayUnion(t...)
	case store.ArrayRemove:
		return firestore.ArrayRemove(t...)
	}
	switch v {
	case store.ServerTimestamp:
		return firestore.ServerTimestamp
	case store.Delete:
		return firestore.Delete
	}
	return v
}

var _ store.DocumentStore = (*FirestoreService)(nil)
