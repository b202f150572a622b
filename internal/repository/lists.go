package repository

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/store"
	"github.com/ytakahashi/boardsync/internal/stream"
)

func setListID(l *models.List, id string) { l.ID = id }

// WatchLists streams the lists of a board, oldest first.
func (r *Repository) WatchLists(ctx context.Context, boardID string) <-chan stream.Update[[]models.List] {
	r.traceWatch(ctx, "WatchLists", attribute.String("board.id", boardID))
	q := store.Query{Collection: CollectionLists, OrderBy: "createdAt"}.
		Where("boardId", store.OpEqual, boardID)
	return watchQuery(ctx, r.docs, q, setListID)
}

func (r *Repository) GetList(ctx context.Context, listID string) (list models.List, err error) {
	ctx, span := r.start(ctx, "GetList", attribute.String("list.id", listID))
	defer func() { end(span, err) }()

	snap, err := r.get(ctx, CollectionLists, listID)
	if err != nil {
		return models.List{}, err
	}
	return decode(snap, setListID)
}

func (r *Repository) CreateList(ctx context.Context, boardID, name string) (_ models.List, err error) {
	ctx, span := r.start(ctx, "CreateList", attribute.String("board.id", boardID))
	defer func() { end(span, err) }()

	list := models.List{
		BoardID:   boardID,
		Name:      name,
		CreatedAt: r.now().UTC(),
	}
	id, err := r.docs.Add(ctx, CollectionLists, list)
	if err != nil {
		return models.List{}, fmt.Errorf("failed to create list: %w", err)
	}
	list.ID = id
	return list, nil
}

func (r *Repository) RenameList(ctx context.Context, listID, name string) (err error) {
	ctx, span := r.start(ctx, "RenameList", attribute.String("list.id", listID))
	defer func() { end(span, err) }()

	if err := r.docs.Update(ctx, CollectionLists, listID, []store.Update{{Path: "name", Value: name}}); err != nil {
		return fmt.Errorf("failed to rename list: %w", err)
	}
	return nil
}

// DeleteList removes the list document only; its cards stay behind.
func (r *Repository) DeleteList(ctx context.Context, listID string) (err error) {
	ctx, span := r.start(ctx, "DeleteList", attribute.String("list.id", listID))
	defer func() { end(span, err) }()

	if err := r.docs.Delete(ctx, CollectionLists, listID); err != nil {
		return fmt.Errorf("failed to delete list: %w", err)
	}
	return nil
}
