// Package state keeps the latest value of a live subscription together with
// the flags a screen shows around it.
package state

import (
	"context"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ytakahashi/boardsync/internal/repository"
	"github.com/ytakahashi/boardsync/internal/stream"
)

type Phase int

const (
	Idle Phase = iota
	Loading
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (p Phase) MarshalJSON() ([]byte, error) { return []byte(strconv.Quote(p.String())), nil }

// State is an immutable record; holders replace it, never edit it.
type State[T any] struct {
	Phase   Phase  `json:"phase"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Notice  string `json:"notice,omitempty"`
	Busy    bool   `json:"busy"`
	Version uint64 `json:"version"`
}

// Loader opens the subscription a holder follows.
type Loader[T any] func(ctx context.Context) <-chan stream.Update[T]

// Holder follows one subscription. The phase moves Idle → Loading → Ready or
// Failed; further data keeps it Ready, and only Retry leaves Failed.
type Holder[T any] struct {
	name string
	load Loader[T]

	mu      sync.Mutex
	state   State[T]
	parent  context.Context
	cancel  context.CancelFunc
	gen     uint64
	running bool
	closed  bool

	subs    map[int]chan State[T]
	nextSub int
}

func NewHolder[T any](name string, load Loader[T]) *Holder[T] {
	return &Holder[T]{
		name: name,
		load: load,
		subs: map[int]chan State[T]{},
	}
}

// State returns the current record.
func (h *Holder[T]) State() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start subscribes once; later calls are ignored. The subscription lives
// until ctx is done or Close is called.
func (h *Holder[T]) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.parent != nil {
		return
	}
	h.parent = ctx
	h.subscribe()
}

// Retry re-subscribes after a failure or after the subscription ended.
// It reports whether a new subscription was opened.
func (h *Holder[T]) Retry() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.parent == nil || h.parent.Err() != nil {
		return false
	}
	if h.running && h.state.Phase != Failed {
		return false
	}
	h.subscribe()
	return true
}

// Close tears the subscription down and closes every subscriber channel.
func (h *Holder[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.gen++
	if h.cancel != nil {
		h.cancel()
	}
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Subscribe returns a channel that always holds the newest state; the current
// state is delivered first. cancel releases the channel.
func (h *Holder[T]) Subscribe() (<-chan State[T], func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan State[T], 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	ch <- h.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Update replaces the state with fn applied to the current one.
func (h *Holder[T]) Update(fn func(State[T]) State[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replace(fn(h.state))
}

// subscribe must be called with h.mu held.
func (h *Holder[T]) subscribe() {
	if h.cancel != nil {
		h.cancel()
	}
	ctx, cancel := context.WithCancel(h.parent)
	h.cancel = cancel
	h.gen++
	h.running = true
	gen := h.gen

	next := h.state
	next.Phase = Loading
	next.Error = ""
	h.replace(next)

	ch := h.load(ctx)
	go h.follow(gen, ch)
}

func (h *Holder[T]) follow(gen uint64, ch <-chan stream.Update[T]) {
	for u := range ch {
		h.mu.Lock()
		if gen != h.gen {
			h.mu.Unlock()
			return
		}
		next := h.state
		if u.Err != nil {
			log.WithError(u.Err).WithField("holder", h.name).Warn("subscription failed")
			next.Phase = Failed
			next.Error = u.Err.Error()
		} else {
			next.Phase = Ready
			next.Data = u.Value
			next.Error = ""
		}
		h.replace(next)
		h.mu.Unlock()
	}

	h.mu.Lock()
	if gen == h.gen {
		h.running = false
	}
	h.mu.Unlock()
}

// replace must be called with h.mu held.
func (h *Holder[T]) replace(next State[T]) {
	next.Version = h.state.Version + 1
	h.state = next
	for _, ch := range h.subs {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- next
		}
	}
}

// mutate runs fn with Busy set, recording a failure as the notice.
func (h *Holder[T]) mutate(fn func() error) error {
	h.Update(func(s State[T]) State[T] {
		s.Busy = true
		s.Notice = ""
		return s
	})
	err := fn()
	h.Update(func(s State[T]) State[T] {
		s.Busy = false
		if err != nil {
			s.Notice = err.Error()
		}
		return s
	})
	return err
}

// reject records a validation failure without contacting the store.
func (h *Holder[T]) reject(err error) error {
	h.Update(func(s State[T]) State[T] {
		s.Notice = err.Error()
		return s
	})
	return err
}

// RequireText trims s and rejects it when blank.
func RequireText(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", repository.ValidationError(field + " must not be blank")
	}
	return s, nil
}
