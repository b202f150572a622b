package memory

import (
	"context"
	"reflect"
	"sync"

	"github.com/ytakahashi/boardsync/internal/store"
)

// watcher re-evaluates its target whenever its collection changes and
// delivers only when the result differs from the last delivery, the way a
// Firestore listener stays silent for writes that do not affect it.
type watcher struct {
	collection string
	wake       chan struct{}
}

func (s *Store) WatchDocument(ctx context.Context, collection, id string, fn store.DocumentFunc) func() {
	var last *snapshot
	return s.watch(ctx, collection, func() {
		s.mu.RLock()
		doc, ok := s.collections[collection][id]
		snap := snapshot{id: id, exists: ok, data: copyDoc(doc)}
		s.mu.RUnlock()
		if last != nil && last.exists == snap.exists && reflect.DeepEqual(last.data, snap.data) {
			return
		}
		last = &snap
		fn(snap, nil)
	})
}

func (s *Store) WatchQuery(ctx context.Context, q store.Query, fn store.QueryFunc) func() {
	var last []store.Snapshot
	delivered := false
	return s.watch(ctx, q.Collection, func() {
		s.mu.RLock()
		snaps, err := s.run(q)
		s.mu.RUnlock()
		if err != nil {
			fn(nil, err)
			return
		}
		if delivered && reflect.DeepEqual(last, snaps) {
			return
		}
		last, delivered = snaps, true
		fn(snaps, nil)
	})
}

func (s *Store) watch(ctx context.Context, collection string, eval func()) func() {
	ctx, cancel := context.WithCancel(ctx)
	w := &watcher{collection: collection, wake: make(chan struct{}, 1)}
	w.wake <- struct{}{}

	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
			}
			if ctx.Err() != nil {
				return
			}
			eval()
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}

func (s *Store) notify(collection string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for w := range s.watchers {
		if w.collection != collection {
			continue
		}
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}
