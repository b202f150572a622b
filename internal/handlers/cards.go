package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/repository"
	"github.com/ytakahashi/boardsync/internal/state"
)

type cardScope struct {
	card  models.Card
	list  models.List
	board models.Board
}

// card resolves card → list → board and checks the caller's membership.
func (h *Handler) card(ctx context.Context, uid, cardID string) (cardScope, error) {
	card, err := h.repo.GetCard(ctx, cardID)
	if err != nil {
		return cardScope{}, err
	}
	list, err := h.repo.GetList(ctx, card.ListID)
	if err != nil {
		return cardScope{}, err
	}
	board, err := h.board(ctx, uid, list.BoardID)
	if err != nil {
		return cardScope{}, err
	}
	return cardScope{card: card, list: list, board: board}, nil
}

func (h *Handler) checklist(ctx context.Context, uid, checklistID string) (models.Checklist, error) {
	cl, err := h.repo.GetChecklist(ctx, checklistID)
	if err != nil {
		return models.Checklist{}, err
	}
	if _, err := h.card(ctx, uid, cl.CardID); err != nil {
		return models.Checklist{}, err
	}
	return cl, nil
}

type createCardRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	DueDate     *int64  `json:"dueDate"`
}

func (h *Handler) createCard(c echo.Context) error {
	ctx := c.Request().Context()
	list, err := h.list(ctx, h.identity(c).UID, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	var req createCardRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	title, err := state.RequireText("card title", req.Title)
	if err != nil {
		return h.fail(c, err)
	}
	card, err := h.repo.CreateCard(ctx, models.Card{
		ListID:      list.ID,
		Title:       title,
		Description: req.Description,
		DueDate:     req.DueDate,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, card)
}

func (h *Handler) streamCard(c echo.Context) error {
	cardID := c.Param("id")
	if _, err := h.card(c.Request().Context(), h.identity(c).UID, cardID); err != nil {
		return h.fail(c, err)
	}
	return streamStates(c, state.NewCardDetailHolder(h.repo, cardID).Holder)
}

func (h *Handler) updateCard(c echo.Context) error {
	ctx := c.Request().Context()
	cardID := c.Param("id")
	if _, err := h.card(ctx, h.identity(c).UID, cardID); err != nil {
		return h.fail(c, err)
	}
	var patch repository.CardPatch
	if err := decode(c, &patch); err != nil {
		return h.fail(c, err)
	}
	if patch.Title != nil {
		title, err := state.RequireText("card title", *patch.Title)
		if err != nil {
			return h.fail(c, err)
		}
		patch.Title = &title
	}
	if err := h.repo.UpdateCard(ctx, cardID, patch); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) deleteCard(c echo.Context) error {
	ctx := c.Request().Context()
	cardID := c.Param("id")
	if _, err := h.card(ctx, h.identity(c).UID, cardID); err != nil {
		return h.fail(c, err)
	}
	if err := h.repo.DeleteCard(ctx, cardID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type moveRequest struct {
	ListID string `json:"listId"`
}

func (h *Handler) moveCard(c echo.Context) error {
	ctx := c.Request().Context()
	uid := h.identity(c).UID
	cardID := c.Param("id")
	scope, err := h.card(ctx, uid, cardID)
	if err != nil {
		return h.fail(c, err)
	}
	var req moveRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	target, err := h.list(ctx, uid, req.ListID)
	if err != nil {
		return h.fail(c, err)
	}
	if target.BoardID != scope.board.ID {
		return h.fail(c, repository.ValidationError("cards can only move within their board"))
	}
	if err := h.repo.MoveCard(ctx, cardID, target.ID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// setLocation stores the posted location; a JSON null clears it.
func (h *Handler) setLocation(c echo.Context) error {
	ctx := c.Request().Context()
	cardID := c.Param("id")
	if _, err := h.card(ctx, h.identity(c).UID, cardID); err != nil {
		return h.fail(c, err)
	}
	var loc *models.GeoLocation
	if err := decode(c, &loc); err != nil {
		return h.fail(c, err)
	}
	if loc != nil && (loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180) {
		return h.fail(c, repository.ValidationError("coordinates out of range"))
	}
	if err := h.repo.SetCardLocation(ctx, cardID, loc); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) assign(c echo.Context) error {
	ctx := c.Request().Context()
	cardID := c.Param("id")
	scope, err := h.card(ctx, h.identity(c).UID, cardID)
	if err != nil {
		return h.fail(c, err)
	}
	var req memberRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	if !scope.board.HasMember(req.UserID) {
		return h.fail(c, repository.ValidationError(fmt.Sprintf("%q is not a member of the board", req.UserID)))
	}
	if err := h.repo.AssignMember(ctx, cardID, req.UserID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) unassign(c echo.Context) error {
	ctx := c.Request().Context()
	cardID := c.Param("id")
	if _, err := h.card(ctx, h.identity(c).UID, cardID); err != nil {
		return h.fail(c, err)
	}
	if err := h.repo.UnassignMember(ctx, cardID, c.Param("uid")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type titleRequest struct {
	Title string `json:"title"`
}

func (h *Handler) createChecklist(c echo.Context) error {
	ctx := c.Request().Context()
	cardID := c.Param("id")
	if _, err := h.card(ctx, h.identity(c).UID, cardID); err != nil {
		return h.fail(c, err)
	}
	var req titleRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	title, err := state.RequireText("checklist title", req.Title)
	if err != nil {
		return h.fail(c, err)
	}
	cl, err := h.repo.CreateChecklist(ctx, cardID, title)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, cl)
}

type textRequest struct {
	Text string `json:"text"`
}

func (h *Handler) addChecklistItem(c echo.Context) error {
	ctx := c.Request().Context()
	cl, err := h.checklist(ctx, h.identity(c).UID, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	var req textRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	text, err := state.RequireText("item text", req.Text)
	if err != nil {
		return h.fail(c, err)
	}
	cl = cl.WithItem(h.repo.NewChecklistItem(text))
	if err := h.repo.SaveChecklistItems(ctx, cl.ID, cl.Items); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusCreated)
}

type itemPatch struct {
	Text    *string `json:"text"`
	Checked *bool   `json:"checked"`
}

func (h *Handler) updateChecklistItem(c echo.Context) error {
	ctx := c.Request().Context()
	cl, err := h.checklist(ctx, h.identity(c).UID, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	itemID := c.Param("itemId")
	if !cl.HasItem(itemID) {
		return h.fail(c, fmt.Errorf("checklist item %s: %w", itemID, repository.ErrNotFound))
	}
	var patch itemPatch
	if err := decode(c, &patch); err != nil {
		return h.fail(c, err)
	}
	if patch.Text != nil {
		text, err := state.RequireText("item text", *patch.Text)
		if err != nil {
			return h.fail(c, err)
		}
		cl = cl.WithItemText(itemID, text)
	}
	if patch.Checked != nil {
		cl = cl.WithItemChecked(itemID, *patch.Checked)
	}
	if err := h.repo.SaveChecklistItems(ctx, cl.ID, cl.Items); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) removeChecklistItem(c echo.Context) error {
	ctx := c.Request().Context()
	cl, err := h.checklist(ctx, h.identity(c).UID, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	itemID := c.Param("itemId")
	if !cl.HasItem(itemID) {
		return h.fail(c, fmt.Errorf("checklist item %s: %w", itemID, repository.ErrNotFound))
	}
	if err := h.repo.SaveChecklistItems(ctx, cl.ID, cl.WithoutItem(itemID).Items); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) deleteChecklist(c echo.Context) error {
	ctx := c.Request().Context()
	cl, err := h.checklist(ctx, h.identity(c).UID, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.repo.DeleteChecklist(ctx, cl.ID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) addComment(c echo.Context) error {
	ctx := c.Request().Context()
	cardID := c.Param("id")
	if _, err := h.card(ctx, h.identity(c).UID, cardID); err != nil {
		return h.fail(c, err)
	}
	var req textRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	text, err := state.RequireText("comment", req.Text)
	if err != nil {
		return h.fail(c, err)
	}
	if _, err := h.repo.AddComment(ctx, cardID, text); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusCreated)
}

// deleteComment lets only the author remove a comment.
func (h *Handler) deleteComment(c echo.Context) error {
	ctx := c.Request().Context()
	uid := h.identity(c).UID
	comment, err := h.repo.GetComment(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if _, err := h.card(ctx, uid, comment.CardID); err != nil {
		return h.fail(c, err)
	}
	if comment.AuthorID != uid {
		return h.fail(c, fmt.Errorf("comment %s: %w", comment.ID, repository.ErrNotFound))
	}
	if err := h.repo.DeleteComment(ctx, comment.ID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
