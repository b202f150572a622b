package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ytakahashi/boardsync/internal/auth"
	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/store"
	"github.com/ytakahashi/boardsync/internal/stream"
)

func setUserID(u *models.User, id string) { u.ID = id }

func (r *Repository) WatchUser(ctx context.Context, userID string) <-chan stream.Update[models.User] {
	r.traceWatch(ctx, "WatchUser", attribute.String("user.id", userID))
	return watchDocument(ctx, r.docs, CollectionUsers, userID, setUserID)
}

func (r *Repository) GetUser(ctx context.Context, userID string) (u models.User, err error) {
	ctx, span := r.start(ctx, "GetUser", attribute.String("user.id", userID))
	defer func() { end(span, err) }()

	snap, err := r.get(ctx, CollectionUsers, userID)
	if err != nil {
		return models.User{}, err
	}
	return decode(snap, setUserID)
}

// CurrentUser loads the profile of the signed-in user.
func (r *Repository) CurrentUser(ctx context.Context) (models.User, error) {
	id, err := r.currentUser(ctx)
	if err != nil {
		return models.User{}, err
	}
	return r.GetUser(ctx, id.UID)
}

// SyncUserOnSignIn creates or merges the user document for a fresh sign-in.
// Identity fields are overwritten, the provider tag is added to the
// provider list, and profile fields the user edited are left alone.
func (r *Repository) SyncUserOnSignIn(ctx context.Context, id auth.Identity) (_ models.User, err error) {
	ctx, span := r.start(ctx, "SyncUserOnSignIn", attribute.String("user.id", id.UID), attribute.String("provider", id.Provider))
	defer func() { end(span, err) }()

	now := r.now().UTC()
	fields := map[string]any{
		"displayName": id.Name,
		"email":       id.Email,
		"lastLoginAt": now,
	}
	if id.PhotoURL != "" {
		fields["photoUrl"] = id.PhotoURL
	}
	if id.Provider != "" {
		fields["providers"] = store.ArrayUnion{id.Provider}
	}

	_, err = r.docs.Get(ctx, CollectionUsers, id.UID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fields["createdAt"] = now
		fields["bio"] = ""
		fields["department"] = ""
		fields["position"] = ""
		fields["skills"] = []string{}
		fields["preferences"] = map[string]string{}
		if id.Provider == "" {
			fields["providers"] = []string{}
		}
	case err != nil:
		return models.User{}, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := r.docs.Merge(ctx, CollectionUsers, id.UID, fields); err != nil {
		return models.User{}, fmt.Errorf("failed to save user: %w", err)
	}
	return r.GetUser(ctx, id.UID)
}

// ProfilePatch lists the profile fields a user may edit.
type ProfilePatch struct {
	DisplayName *string           `json:"displayName,omitempty"`
	PhotoURL    *string           `json:"photoUrl,omitempty"`
	Bio         *string           `json:"bio,omitempty"`
	Department  *string           `json:"department,omitempty"`
	Position    *string           `json:"position,omitempty"`
	Skills      []string          `json:"skills,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

func (p ProfilePatch) updates() []store.Update {
	var out []store.Update
	set := func(path string, v *string) {
		if v != nil {
			out = append(out, store.Update{Path: path, Value: *v})
		}
	}
	set("displayName", p.DisplayName)
	set("photoUrl", p.PhotoURL)
	set("bio", p.Bio)
	set("department", p.Department)
	set("position", p.Position)
	if p.Skills != nil {
		out = append(out, store.Update{Path: "skills", Value: p.Skills})
	}
	for k, v := range p.Preferences {
		out = append(out, store.Update{Path: "preferences." + k, Value: v})
	}
	return out
}

// preferenceKeyReserved are characters that would turn a key into a nested
// or invalid field path.
const preferenceKeyReserved = ".~*/[]`"

func (p ProfilePatch) validate() error {
	for k := range p.Preferences {
		if k == "" || strings.ContainsAny(k, preferenceKeyReserved) {
			return ValidationError(fmt.Sprintf("preference key %q may not be empty or contain any of %s", k, preferenceKeyReserved))
		}
	}
	return nil
}

func (r *Repository) UpdateProfile(ctx context.Context, patch ProfilePatch) (err error) {
	ctx, span := r.start(ctx, "UpdateProfile")
	defer func() { end(span, err) }()

	user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}
	if err := patch.validate(); err != nil {
		return err
	}
	updates := patch.updates()
	if len(updates) == 0 {
		return nil
	}
	if err := r.docs.Update(ctx, CollectionUsers, user.UID, updates); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}
