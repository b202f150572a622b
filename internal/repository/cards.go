package repository

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/store"
	"github.com/ytakahashi/boardsync/internal/stream"
)

func setCardID(c *models.Card, id string) { c.ID = id }

// WatchCards streams the cards of one list, oldest first.
func (r *Repository) WatchCards(ctx context.Context, listID string) <-chan stream.Update[[]models.Card] {
	r.traceWatch(ctx, "WatchCards", attribute.String("list.id", listID))
	q := store.Query{Collection: CollectionCards, OrderBy: "createdAt"}.
		Where("listId", store.OpEqual, listID)
	return watchQuery(ctx, r.docs, q, setCardID)
}

func (r *Repository) WatchCard(ctx context.Context, cardID string) <-chan stream.Update[models.Card] {
	r.traceWatch(ctx, "WatchCard", attribute.String("card.id", cardID))
	return watchDocument(ctx, r.docs, CollectionCards, cardID, setCardID)
}

func (r *Repository) GetCard(ctx context.Context, cardID string) (card models.Card, err error) {
	ctx, span := r.start(ctx, "GetCard", attribute.String("card.id", cardID))
	defer func() { end(span, err) }()

	snap, err := r.get(ctx, CollectionCards, cardID)
	if err != nil {
		return models.Card{}, err
	}
	return decode(snap, setCardID)
}

func (r *Repository) CreateCard(ctx context.Context, card models.Card) (_ models.Card, err error) {
	ctx, span := r.start(ctx, "CreateCard", attribute.String("list.id", card.ListID))
	defer func() { end(span, err) }()

	if card.AssignedMemberIDs == nil {
		card.AssignedMemberIDs = []string{}
	}
	card.CreatedAt = r.now().UTC()
	id, err := r.docs.Add(ctx, CollectionCards, card)
	if err != nil {
		return models.Card{}, fmt.Errorf("failed to create card: %w", err)
	}
	card.ID = id
	return card, nil
}

// CardPatch lists the card fields to change. ClearDescription and
// ClearDueDate remove the optional fields.
type CardPatch struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	ClearDescription bool    `json:"clearDescription,omitempty"`
	DueDate          *int64  `json:"dueDate,omitempty"`
	ClearDueDate     bool    `json:"clearDueDate,omitempty"`
}

func (p CardPatch) updates() []store.Update {
	var out []store.Update
	if p.Title != nil {
		out = append(out, store.Update{Path: "title", Value: *p.Title})
	}
	switch {
	case p.ClearDescription:
		out = append(out, store.Update{Path: "description", Value: store.Delete})
	case p.Description != nil:
		out = append(out, store.Update{Path: "description", Value: *p.Description})
	}
	switch {
	case p.ClearDueDate:
		out = append(out, store.Update{Path: "dueDate", Value: store.Delete})
	case p.DueDate != nil:
		out = append(out, store.Update{Path: "dueDate", Value: *p.DueDate})
	}
	return out
}

func (r *Repository) UpdateCard(ctx context.Context, cardID string, patch CardPatch) (err error) {
	ctx, span := r.start(ctx, "UpdateCard", attribute.String("card.id", cardID))
	defer func() { end(span, err) }()

	updates := patch.updates()
	if len(updates) == 0 {
		return nil
	}
	if err := r.docs.Update(ctx, CollectionCards, cardID, updates); err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	return nil
}

// MoveCard points the card at another list. It is a single field update and
// is not coordinated with anything else.
func (r *Repository) MoveCard(ctx context.Context, cardID, targetListID string) (err error) {
	ctx, span := r.start(ctx, "MoveCard", attribute.String("card.id", cardID), attribute.String("list.id", targetListID))
	defer func() { end(span, err) }()

	if err := r.docs.Update(ctx, CollectionCards, cardID, []store.Update{{Path: "listId", Value: targetListID}}); err != nil {
		return fmt.Errorf("failed to move card: %w", err)
	}
	return nil
}

func (r *Repository) AssignMember(ctx context.Context, cardID, userID string) (err error) {
	ctx, span := r.start(ctx, "AssignMember", attribute.String("card.id", cardID), attribute.String("member.id", userID))
	defer func() { end(span, err) }()

	err = r.docs.Update(ctx, CollectionCards, cardID, []store.Update{
		{Path: "assignedMemberIds", Value: store.ArrayUnion{userID}},
	})
	if err != nil {
		return fmt.Errorf("failed to assign member: %w", err)
	}
	return nil
}

func (r *Repository) UnassignMember(ctx context.Context, cardID, userID string) (err error) {
	ctx, span := r.start(ctx, "UnassignMember", attribute.String("card.id", cardID), attribute.String("member.id", userID))
	defer func() { end(span, err) }()

	err = r.docs.Update(ctx, CollectionCards, cardID, []store.Update{
		{Path: "assignedMemberIds", Value: store.ArrayRemove{userID}},
	})
	if err != nil {
		return fmt.Errorf("failed to unassign member: %w", err)
	}
	return nil
}

// SetCardLocation stores loc on the card, or clears it when loc is nil.
func (r *Repository) SetCardLocation(ctx context.Context, cardID string, loc *models.GeoLocation) (err error) {
	ctx, span := r.start(ctx, "SetCardLocation", attribute.String("card.id", cardID))
	defer func() { end(span, err) }()

	var value any = store.Delete
	if loc != nil {
		value = *loc
	}
	if err := r.docs.Update(ctx, CollectionCards, cardID, []store.Update{{Path: "location", Value: value}}); err != nil {
		return fmt.Errorf("failed to set card location: %w", err)
	}
	return nil
}

// DeleteCard removes the card document only.
func (r *Repository) DeleteCard(ctx context.Context, cardID string) (err error) {
	ctx, span := r.start(ctx, "DeleteCard", attribute.String("card.id", cardID))
	defer func() { end(span, err) }()

	if err := r.docs.Delete(ctx, CollectionCards, cardID); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return nil
}
