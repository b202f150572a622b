package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ytakahashi/boardsync/internal/store"
)

func TestToFirestoreValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"array union", store.ArrayUnion{"u1", "u2"}, firestore.ArrayUnion("u1", "u2")},
		{"array remove", store.ArrayRemove{"u1"}, firestore.ArrayRemove("u1")},
		{"server timestamp", store.ServerTimestamp, firestore.ServerTimestamp},
		{"delete", store.Delete, firestore.Delete},
		{"plain string", "todo", "todo"},
		{"string slice", []string{"a"}, []string{"a"}},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toFirestoreValue(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("toFirestoreValue(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestToFirestoreTranslatesMapFields(t *testing.T) {
	got := toFirestore(map[string]any{
		"providers":   store.ArrayUnion{"password"},
		"lastLoginAt": store.ServerTimestamp,
		"bio":         "",
	})
	want := map[string]any{
		"providers":   firestore.ArrayUnion("password"),
		"lastLoginAt": firestore.ServerTimestamp,
		"bio":         "",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("toFirestore = %#v", got)
	}

	type card struct{ Title string }
	if got := toFirestore(card{Title: "t"}); got != (card{Title: "t"}) {
		t.Fatalf("structs should pass through, got %#v", got)
	}
}

func TestWrapErr(t *testing.T) {
	notFound := wrapErr(status.Error(codes.NotFound, "no document"), "failed to get %s/%s", "cards", "c1")
	if !errors.Is(notFound, store.ErrNotFound) {
		t.Fatalf("NotFound not mapped: %v", notFound)
	}
	if want := "failed to get cards/c1: not found"; notFound.Error() != want {
		t.Fatalf("message = %q, want %q", notFound.Error(), want)
	}

	denied := status.Error(codes.PermissionDenied, "rules")
	err := wrapErr(denied, "failed to update %s", "boards/b1")
	if errors.Is(err, store.ErrNotFound) {
		t.Fatal("PermissionDenied mapped to ErrNotFound")
	}
	if !errors.Is(err, denied) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestStopped(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	live := context.Background()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{"context canceled", canceled, errors.New("anything"), true},
		{"iterator done", live, iterator.Done, true},
		{"grpc canceled", live, status.Error(codes.Canceled, "stream closed"), true},
		{"unavailable", live, status.Error(codes.Unavailable, "backend down"), false},
		{"permission denied", live, status.Error(codes.PermissionDenied, "rules"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stopped(tt.ctx, tt.err); got != tt.want {
				t.Fatalf("stopped = %v, want %v", got, tt.want)
			}
		})
	}
}
