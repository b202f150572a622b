// Package memory is an in-process DocumentStore and ObjectStore used for
// local development (STORE_BACKEND=memory) and tests. Documents are kept in
// their JSON form, so anything stored must round-trip through encoding/json
// field names the same way it does through Firestore tags.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/ytakahashi/boardsync/internal/store"
)

type document = map[string]any

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]document
	watchers    map[*watcher]struct{}

	now func() time.Time
}

func New() *Store {
	return &Store{
		collections: map[string]map[string]document{},
		watchers:    map[*watcher]struct{}{},
		now:         time.Now,
	}
}

type snapshot struct {
	id     string
	exists bool
	data   document
}

func (s snapshot) ID() string   { return s.id }
func (s snapshot) Exists() bool { return s.exists }

func (s snapshot) DataTo(v any) error {
	if !s.exists {
		return fmt.Errorf("document %s: %w", s.id, store.ErrNotFound)
	}
	raw, err := sonic.ConfigStd.Marshal(s.data)
	if err != nil {
		return err
	}
	return sonic.ConfigStd.Unmarshal(raw, v)
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("document %s/%s: %w", collection, id, store.ErrNotFound)
	}
	return snapshot{id: id, exists: true, data: copyDoc(doc)}, nil
}

func (s *Store) Find(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run(q)
}

func (s *Store) Add(ctx context.Context, collection string, data any) (string, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	doc, err := s.encode(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs(collection)[id] = doc
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	docs := s.docs(collection)
	doc := copyDoc(docs[id])
	if doc == nil {
		doc = document{}
	}
	for k, v := range fields {
		if err := s.apply(doc, k, v); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	docs[id] = doc
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, updates []store.Update) error {
	s.mu.Lock()
	docs := s.docs(collection)
	cur, ok := docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("document %s/%s: %w", collection, id, store.ErrNotFound)
	}
	doc := copyDoc(cur)
	for _, u := range updates {
		if err := s.apply(doc, u.Path, u.Value); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	docs[id] = doc
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	delete(s.docs(collection), id)
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

// Watchers is the number of live subscriptions.
func (s *Store) Watchers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

// docs must be called with mu held for writing.
func (s *Store) docs(collection string) map[string]document {
	docs, ok := s.collections[collection]
	if !ok {
		docs = map[string]document{}
		s.collections[collection] = docs
	}
	return docs
}

func (s *Store) run(q store.Query) ([]store.Snapshot, error) {
	var out []snapshot
	for id, doc := range s.collections[q.Collection] {
		if matches(doc, q.Filters) {
			out = append(out, snapshot{id: id, exists: true, data: copyDoc(doc)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if q.OrderBy != "" {
			if c := compare(lookup(out[i].data, q.OrderBy), lookup(out[j].data, q.OrderBy)); c != 0 {
				return c < 0
			}
		}
		return out[i].id < out[j].id
	})
	snaps := make([]store.Snapshot, len(out))
	for i := range out {
		snaps[i] = out[i]
	}
	return snaps, nil
}

func (s *Store) encode(data any) (document, error) {
	if fields, ok := data.(map[string]any); ok {
		doc := document{}
		for k, v := range fields {
			if err := s.apply(doc, k, v); err != nil {
				return nil, err
			}
		}
		return doc, nil
	}
	v, err := normalize(data)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(document)
	if !ok {
		return nil, fmt.Errorf("document data must be an object, got %T", data)
	}
	delete(doc, "id")
	return doc, nil
}

func (s *Store) apply(doc document, path string, value any) error {
	parts := strings.Split(path, ".")
	parent := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := parent[p].(document)
		if !ok {
			next = document{}
			parent[p] = next
		}
		parent = next
	}
	key := parts[len(parts)-1]

	switch v := value.(type) {
	case store.ArrayUnion:
		cur, _ := parent[key].([]any)
		merged := append([]any{}, cur...)
		for _, el := range v {
			n, err := normalize(el)
			if err != nil {
				return err
			}
			if !containsValue(merged, n) {
				merged = append(merged, n)
			}
		}
		parent[key] = merged
	case store.ArrayRemove:
		cur, _ := parent[key].([]any)
		kept := []any{}
		for _, el := range cur {
			drop := false
			for _, rm := range v {
				n, err := normalize(rm)
				if err != nil {
					return err
				}
				if reflect.DeepEqual(el, n) {
					drop = true
					break
				}
			}
			if !drop {
				kept = append(kept, el)
			}
		}
		parent[key] = kept
	default:
		switch value {
		case store.ServerTimestamp:
			parent[key] = s.now().UTC().Format(time.RFC3339Nano)
		case store.Delete:
			delete(parent, key)
		default:
			n, err := normalize(value)
			if err != nil {
				return err
			}
			parent[key] = n
		}
	}
	return nil
}

func normalize(v any) (any, error) {
	raw, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out any
	if err := sonic.ConfigStd.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

func matches(doc document, filters []store.Filter) bool {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false
		}
		got := lookup(doc, f.Field)
		switch f.Op {
		case store.OpEqual:
			if !reflect.DeepEqual(got, want) {
				return false
			}
		case store.OpArrayContains:
			arr, _ := got.([]any)
			if !containsValue(arr, want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func lookup(doc document, path string) any {
	var cur any = doc
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(document)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func containsValue(arr []any, v any) bool {
	for _, el := range arr {
		if reflect.DeepEqual(el, v) {
			return true
		}
	}
	return false
}

// compare orders JSON values; RFC 3339 strings compare as instants.
func compare(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			at, errA := time.Parse(time.RFC3339Nano, av)
			bt, errB := time.Parse(time.RFC3339Nano, bv)
			if errA == nil && errB == nil {
				return at.Compare(bt)
			}
			return strings.Compare(av, bv)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func copyDoc(doc document) document {
	if doc == nil {
		return nil
	}
	out := make(document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case document:
		return copyDoc(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	}
	return v
}
