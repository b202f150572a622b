package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func recv[T any](t *testing.T, ch <-chan Update[T]) (Update[T], bool) {
	t.Helper()
	select {
	case u, ok := <-ch:
		return u, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update[T]{}, false
}

func TestPipeConflates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPipe[int](ctx)

	p.Send(1)
	p.Send(2)
	p.Send(3)

	// At most one older value can be in flight; the rest collapse into the
	// newest.
	var got []int
	for len(got) == 0 || got[len(got)-1] != 3 {
		u, ok := recv(t, p.C())
		if !ok {
			t.Fatal("channel closed")
		}
		got = append(got, u.Value)
	}
	if len(got) > 2 {
		t.Fatalf("expected conflated delivery, got %v", got)
	}
}

func TestPipeFailIsTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPipe[string](ctx)

	boom := errors.New("boom")
	p.Send("a")
	p.Fail(boom)
	p.Send("ignored")

	u, ok := recv(t, p.C())
	if ok && u.Err == nil && u.Value == "a" {
		u, ok = recv(t, p.C())
	}
	if !ok || !errors.Is(u.Err, boom) {
		t.Fatalf("expected terminal error, got %+v", u)
	}
	if _, ok := recv(t, p.C()); ok {
		t.Fatal("channel should be closed after the error")
	}
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
}

func TestPipeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPipe[int](ctx)
	cancel()
	if _, ok := recv(t, p.C()); ok {
		t.Fatal("expected closed channel")
	}
}

type fakeWatch struct {
	mu      sync.Mutex
	emit    func(int, error)
	stopped bool
	ready   chan struct{}
}

func newFakeWatch() *fakeWatch { return &fakeWatch{ready: make(chan struct{})} }

func (f *fakeWatch) watch(ctx context.Context, emit func(int, error)) func() {
	f.mu.Lock()
	f.emit = emit
	f.mu.Unlock()
	close(f.ready)
	return func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}
}

func (f *fakeWatch) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func waitStopped(t *testing.T, f *fakeWatch) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !f.isStopped() {
		if time.Now().After(deadline) {
			t.Fatal("subscription was not stopped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeDeliversAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFakeWatch()
	ch := Subscribe[int](ctx, f.watch)
	<-f.ready

	f.emit(7, nil)
	u, ok := recv(t, ch)
	if !ok || u.Value != 7 {
		t.Fatalf("expected 7, got %+v", u)
	}

	cancel()
	waitStopped(t, f)
	if _, ok := recv(t, ch); ok {
		t.Fatal("expected channel to close after cancel")
	}
}

func TestSubscribeStopsAfterError(t *testing.T) {
	f := newFakeWatch()
	ch := Subscribe[int](context.Background(), f.watch)
	<-f.ready

	boom := errors.New("listen failed")
	f.emit(0, boom)
	u, ok := recv(t, ch)
	if !ok || !errors.Is(u.Err, boom) {
		t.Fatalf("expected error, got %+v", u)
	}
	waitStopped(t, f)
}
