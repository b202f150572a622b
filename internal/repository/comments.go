package repository

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/store"
	"github.com/ytakahashi/boardsync/internal/stream"
)

func setCommentID(c *models.Comment, id string) { c.ID = id }

// WatchComments streams the comments of a card ordered by server timestamp.
func (r *Repository) WatchComments(ctx context.Context, cardID string) <-chan stream.Update[[]models.Comment] {
	r.traceWatch(ctx, "WatchComments", attribute.String("card.id", cardID))
	q := store.Query{Collection: CollectionComments, OrderBy: "createdAt"}.
		Where("cardId", store.OpEqual, cardID)
	return watchQuery(ctx, r.docs, q, setCommentID)
}

func (r *Repository) GetComment(ctx context.Context, commentID string) (c models.Comment, err error) {
	ctx, span := r.start(ctx, "GetComment", attribute.String("comment.id", commentID))
	defer func() { end(span, err) }()

	snap, err := r.get(ctx, CollectionComments, commentID)
	if err != nil {
		return models.Comment{}, err
	}
	return decode(snap, setCommentID)
}

// AddComment stores a comment by the current user. The author name is copied
// onto the comment and the timestamp is assigned by the store.
func (r *Repository) AddComment(ctx context.Context, cardID, text string) (_ string, err error) {
	ctx, span := r.start(ctx, "AddComment", attribute.String("card.id", cardID))
	defer func() { end(span, err) }()

	user, err := r.currentUser(ctx)
	if err != nil {
		return "", err
	}
	name := user.Name
	if name == "" {
		name = user.Email
	}
	id, err := r.docs.Add(ctx, CollectionComments, map[string]any{
		"cardId":     cardID,
		"authorId":   user.UID,
		"authorName": name,
		"text":       text,
		"createdAt":  store.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("failed to add comment: %w", err)
	}
	return id, nil
}

func (r *Repository) DeleteComment(ctx context.Context, commentID string) (err error) {
	ctx, span := r.start(ctx, "DeleteComment", attribute.String("comment.id", commentID))
	defer func() { end(span, err) }()

	if err := r.docs.Delete(ctx, CollectionComments, commentID); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}
