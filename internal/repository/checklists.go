package repository

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/store"
	"github.com/ytakahashi/boardsync/internal/stream"
)

func setChecklistID(c *models.Checklist, id string) { c.ID = id }

func (r *Repository) WatchChecklists(ctx context.Context, cardID string) <-chan stream.Update[[]models.Checklist] {
	r.traceWatch(ctx, "WatchChecklists", attribute.String("card.id", cardID))
	q := store.Query{Collection: CollectionChecklists}.Where("cardId", store.OpEqual, cardID)
	return watchQuery(ctx, r.docs, q, setChecklistID)
}

func (r *Repository) GetChecklist(ctx context.Context, checklistID string) (cl models.Checklist, err error) {
	ctx, span := r.start(ctx, "GetChecklist", attribute.String("checklist.id", checklistID))
	defer func() { end(span, err) }()

	snap, err := r.get(ctx, CollectionChecklists, checklistID)
	if err != nil {
		return models.Checklist{}, err
	}
	return decode(snap, setChecklistID)
}

func (r *Repository) CreateChecklist(ctx context.Context, cardID, title string) (_ models.Checklist, err error) {
	ctx, span := r.start(ctx, "CreateChecklist", attribute.String("card.id", cardID))
	defer func() { end(span, err) }()

	cl := models.Checklist{CardID: cardID, Title: title, Items: []models.ChecklistItem{}}
	id, err := r.docs.Add(ctx, CollectionChecklists, cl)
	if err != nil {
		return models.Checklist{}, fmt.Errorf("failed to create checklist: %w", err)
	}
	cl.ID = id
	return cl, nil
}

// NewChecklistItem builds an unchecked item with a fresh id.
func (r *Repository) NewChecklistItem(text string) models.ChecklistItem {
	return models.ChecklistItem{
		ID:        r.newID(),
		Text:      text,
		CreatedAt: r.now().UTC(),
	}
}

// SaveChecklistItems replaces the checklist's item sequence with items.
// Callers derive items from a Checklist value with its With* methods.
func (r *Repository) SaveChecklistItems(ctx context.Context, checklistID string, items []models.ChecklistItem) (err error) {
	ctx, span := r.start(ctx, "SaveChecklistItems", attribute.String("checklist.id", checklistID), attribute.Int("items", len(items)))
	defer func() { end(span, err) }()

	if items == nil {
		items = []models.ChecklistItem{}
	}
	if err := r.docs.Update(ctx, CollectionChecklists, checklistID, []store.Update{{Path: "items", Value: items}}); err != nil {
		return fmt.Errorf("failed to save checklist items: %w", err)
	}
	return nil
}

func (r *Repository) DeleteChecklist(ctx context.Context, checklistID string) (err error) {
	ctx, span := r.start(ctx, "DeleteChecklist", attribute.String("checklist.id", checklistID))
	defer func() { end(span, err) }()

	if err := r.docs.Delete(ctx, CollectionChecklists, checklistID); err != nil {
		return fmt.Errorf("failed to delete checklist: %w", err)
	}
	return nil
}
