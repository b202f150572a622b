// Package auth carries the signed-in user through request contexts and
// verifies identity tokens.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthenticated means the current user could not be resolved.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is what the identity provider vouches for after sign-in.
type Identity struct {
	UID      string
	Name     string
	Email    string
	PhotoURL string
	// Provider is the sign-in method tag, e.g. "password" or "google.com".
	Provider string
}

// Verifier checks an ID token issued by the identity provider.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

// Resolver yields the id of the user a call is made on behalf of.
type Resolver interface {
	CurrentUser(ctx context.Context) (Identity, error)
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.UID == "" {
		return Identity{}, false
	}
	return id, true
}

// ContextResolver resolves the identity stored by WithIdentity.
type ContextResolver struct{}

func (ContextResolver) CurrentUser(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

// ExtractIDToken strips an optional "Bearer " prefix.
func ExtractIDToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(header)
}
