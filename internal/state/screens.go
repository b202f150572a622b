package state

import (
	"context"
	"fmt"

	"github.com/ytakahashi/boardsync/internal/aggregate"
	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/repository"
	"github.com/ytakahashi/boardsync/internal/stream"
)

type BoardsRepository interface {
	WatchBoards(ctx context.Context) <-chan stream.Update[[]models.Board]
	CreateBoard(ctx context.Context, board models.Board) (models.Board, error)
}

// BoardsHolder backs the board list of the signed-in user.
type BoardsHolder struct {
	*Holder[[]models.Board]
	repo BoardsRepository
}

func NewBoardsHolder(repo BoardsRepository) *BoardsHolder {
	return &BoardsHolder{
		Holder: NewHolder("boards", repo.WatchBoards),
		repo:   repo,
	}
}

func (h *BoardsHolder) CreateBoard(ctx context.Context, name, color string, imageURL *string) (models.Board, error) {
	name, err := RequireText("board name", name)
	if err != nil {
		return models.Board{}, h.reject(err)
	}
	var created models.Board
	err = h.mutate(func() error {
		created, err = h.repo.CreateBoard(ctx, models.Board{
			Name:               name,
			BackgroundColor:    color,
			BackgroundImageURL: imageURL,
		})
		return err
	})
	return created, err
}

type BoardDetailRepository interface {
	aggregate.Source
	CreateList(ctx context.Context, boardID, name string) (models.List, error)
	CreateCard(ctx context.Context, card models.Card) (models.Card, error)
	MoveCard(ctx context.Context, cardID, targetListID string) error
	UpdateBoard(ctx context.Context, boardID string, patch repository.BoardPatch) error
}

// BoardDetailHolder follows the aggregated snapshot of one board.
type BoardDetailHolder struct {
	*Holder[aggregate.Snapshot]
	repo    BoardDetailRepository
	boardID string
}

func NewBoardDetailHolder(repo BoardDetailRepository, boardID string) *BoardDetailHolder {
	load := func(ctx context.Context) <-chan stream.Update[aggregate.Snapshot] {
		return aggregate.Watch(ctx, repo, boardID)
	}
	return &BoardDetailHolder{
		Holder:  NewHolder("board "+boardID, load),
		repo:    repo,
		boardID: boardID,
	}
}

func (h *BoardDetailHolder) AddList(ctx context.Context, name string) (models.List, error) {
	name, err := RequireText("list name", name)
	if err != nil {
		return models.List{}, h.reject(err)
	}
	var list models.List
	err = h.mutate(func() error {
		list, err = h.repo.CreateList(ctx, h.boardID, name)
		return err
	})
	return list, err
}

// AddCard writes card in one insert. Only the title is required.
func (h *BoardDetailHolder) AddCard(ctx context.Context, card models.Card) (models.Card, error) {
	title, err := RequireText("card title", card.Title)
	if err != nil {
		return models.Card{}, h.reject(err)
	}
	card.Title = title
	var created models.Card
	err = h.mutate(func() error {
		created, err = h.repo.CreateCard(ctx, card)
		return err
	})
	return created, err
}

// MoveCard rejects targets that are not lists of this board as far as the
// latest snapshot knows.
func (h *BoardDetailHolder) MoveCard(ctx context.Context, cardID, targetListID string) error {
	if s := h.State(); s.Phase == Ready && !hasList(s.Data.Lists, targetListID) {
		return h.reject(repository.ValidationError(fmt.Sprintf("list %s is not on this board", targetListID)))
	}
	return h.mutate(func() error {
		return h.repo.MoveCard(ctx, cardID, targetListID)
	})
}

func (h *BoardDetailHolder) RenameBoard(ctx context.Context, name string) error {
	name, err := RequireText("board name", name)
	if err != nil {
		return h.reject(err)
	}
	return h.mutate(func() error {
		return h.repo.UpdateBoard(ctx, h.boardID, repository.BoardPatch{Name: &name})
	})
}

func hasList(lists []models.List, id string) bool {
	for _, l := range lists {
		if l.ID == id {
			return true
		}
	}
	return false
}

type CardDetailRepository interface {
	aggregate.CardSource
	GetChecklist(ctx context.Context, checklistID string) (models.Checklist, error)
	SaveChecklistItems(ctx context.Context, checklistID string, items []models.ChecklistItem) error
	NewChecklistItem(text string) models.ChecklistItem
	AddComment(ctx context.Context, cardID, text string) (string, error)
}

// CardDetailHolder follows a card with its checklists and comments.
type CardDetailHolder struct {
	*Holder[aggregate.CardDetail]
	repo   CardDetailRepository
	cardID string
}

func NewCardDetailHolder(repo CardDetailRepository, cardID string) *CardDetailHolder {
	load := func(ctx context.Context) <-chan stream.Update[aggregate.CardDetail] {
		return aggregate.WatchCardDetail(ctx, repo, cardID)
	}
	return &CardDetailHolder{
		Holder: NewHolder("card "+cardID, load),
		repo:   repo,
		cardID: cardID,
	}
}

// ToggleItem flips one checklist item and saves the derived item sequence.
func (h *CardDetailHolder) ToggleItem(ctx context.Context, checklistID, itemID string) error {
	return h.editChecklist(ctx, checklistID, itemID, func(cl models.Checklist) models.Checklist {
		return cl.WithItemToggled(itemID)
	})
}

func (h *CardDetailHolder) AddItem(ctx context.Context, checklistID, text string) error {
	text, err := RequireText("item text", text)
	if err != nil {
		return h.reject(err)
	}
	item := h.repo.NewChecklistItem(text)
	return h.editChecklist(ctx, checklistID, "", func(cl models.Checklist) models.Checklist {
		return cl.WithItem(item)
	})
}

func (h *CardDetailHolder) RemoveItem(ctx context.Context, checklistID, itemID string) error {
	return h.editChecklist(ctx, checklistID, itemID, func(cl models.Checklist) models.Checklist {
		return cl.WithoutItem(itemID)
	})
}

func (h *CardDetailHolder) AddComment(ctx context.Context, text string) error {
	text, err := RequireText("comment", text)
	if err != nil {
		return h.reject(err)
	}
	return h.mutate(func() error {
		_, err := h.repo.AddComment(ctx, h.cardID, text)
		return err
	})
}

// Progress is the checked share over all items of the card's checklists.
func (h *CardDetailHolder) Progress() float64 {
	return h.State().Data.Progress
}

func (h *CardDetailHolder) editChecklist(ctx context.Context, checklistID, itemID string, edit func(models.Checklist) models.Checklist) error {
	return h.mutate(func() error {
		cl, err := h.checklist(ctx, checklistID)
		if err != nil {
			return err
		}
		if itemID != "" && !cl.HasItem(itemID) {
			return fmt.Errorf("checklist item %s: %w", itemID, repository.ErrNotFound)
		}
		return h.repo.SaveChecklistItems(ctx, checklistID, edit(cl).Items)
	})
}

// checklist prefers the copy in the latest snapshot and falls back to a read.
func (h *CardDetailHolder) checklist(ctx context.Context, id string) (models.Checklist, error) {
	for _, cl := range h.State().Data.Checklists {
		if cl.ID == id {
			return cl, nil
		}
	}
	return h.repo.GetChecklist(ctx, id)
}
