package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/repository"
	"github.com/ytakahashi/boardsync/internal/state"
)

// board loads a board the caller is a member of. Boards of other users are
// reported as not found.
func (h *Handler) board(ctx context.Context, uid, boardID string) (models.Board, error) {
	board, err := h.repo.GetBoard(ctx, boardID)
	if err != nil {
		return models.Board{}, err
	}
	if !board.HasMember(uid) {
		return models.Board{}, fmt.Errorf("board %s: %w", boardID, repository.ErrNotFound)
	}
	return board, nil
}

func (h *Handler) list(ctx context.Context, uid, listID string) (models.List, error) {
	list, err := h.repo.GetList(ctx, listID)
	if err != nil {
		return models.List{}, err
	}
	if _, err := h.board(ctx, uid, list.BoardID); err != nil {
		return models.List{}, err
	}
	return list, nil
}

func (h *Handler) streamBoards(c echo.Context) error {
	return streamStates(c, state.NewBoardsHolder(h.repo).Holder)
}

type createBoardRequest struct {
	Name               string  `json:"name"`
	BackgroundColor    string  `json:"backgroundColor"`
	BackgroundImageURL *string `json:"backgroundImageUrl"`
}

func (h *Handler) createBoard(c echo.Context) error {
	var req createBoardRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	name, err := state.RequireText("board name", req.Name)
	if err != nil {
		return h.fail(c, err)
	}
	board, err := h.repo.CreateBoard(c.Request().Context(), models.Board{
		Name:               name,
		BackgroundColor:    req.BackgroundColor,
		BackgroundImageURL: req.BackgroundImageURL,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, board)
}

func (h *Handler) getBoard(c echo.Context) error {
	board, err := h.board(c.Request().Context(), h.identity(c).UID, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) updateBoard(c echo.Context) error {
	ctx := c.Request().Context()
	boardID := c.Param("id")
	if _, err := h.board(ctx, h.identity(c).UID, boardID); err != nil {
		return h.fail(c, err)
	}
	var patch repository.BoardPatch
	if err := decode(c, &patch); err != nil {
		return h.fail(c, err)
	}

	if patch.Name != nil {
		name, err := state.RequireText("board name", *patch.Name)
		if err != nil {
			return h.fail(c, err)
		}
		patch.Name = &name
	}
	if err := h.repo.UpdateBoard(ctx, boardID, patch); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) deleteBoard(c echo.Context) error {
	ctx := c.Request().Context()
	boardID := c.Param("id")
	if _, err := h.board(ctx, h.identity(c).UID, boardID); err != nil {
		return h.fail(c, err)
	}
	if err := h.repo.DeleteBoard(ctx, boardID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type memberRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) addMember(c echo.Context) error {
	ctx := c.Request().Context()
	boardID := c.Param("id")
	if _, err := h.board(ctx, h.identity(c).UID, boardID); err != nil {
		return h.fail(c, err)
	}
	var req memberRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	uid, err := state.RequireText("user id", req.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.repo.AddMember(ctx, boardID, uid); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) removeMember(c echo.Context) error {
	ctx := c.Request().Context()
	boardID := c.Param("id")
	board, err := h.board(ctx, h.identity(c).UID, boardID)
	if err != nil {
		return h.fail(c, err)
	}
	uid := c.Param("uid")
	if uid == board.OwnerID {
		return h.fail(c, repository.ValidationError("the owner cannot be removed"))
	}
	if err := h.repo.RemoveMember(ctx, boardID, uid); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// uploadBackground stores the "image" form file and points the board at it.
func (h *Handler) uploadBackground(c echo.Context) error {
	ctx := c.Request().Context()
	boardID := c.Param("id")
	if _, err := h.board(ctx, h.identity(c).UID, boardID); err != nil {
		return h.fail(c, err)
	}
	file, err := c.FormFile("image")
	if err != nil {
		return h.fail(c, repository.ValidationError("image file is required"))
	}
	src, err := file.Open()
	if err != nil {
		return h.fail(c, fmt.Errorf("failed to open upload: %w", err))
	}
	defer src.Close()

	imageURL, err := h.repo.UploadBoardBackgroundImage(ctx, file.Filename, file.Header.Get(echo.HeaderContentType), src)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.repo.UpdateBoard(ctx, boardID, repository.BoardPatch{BackgroundImageURL: &imageURL}); err != nil {
		return h.fail(c, err)
	}
	log.WithField("board", boardID).Debug("background image updated")
	return c.JSON(http.StatusCreated, map[string]string{"url": imageURL})
}

func (h *Handler) streamBoard(c echo.Context) error {
	boardID := c.Param("id")
	if _, err := h.board(c.Request().Context(), h.identity(c).UID, boardID); err != nil {
		return h.fail(c, err)
	}
	return streamStates(c, state.NewBoardDetailHolder(h.repo, boardID).Holder)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createList(c echo.Context) error {
	ctx := c.Request().Context()
	boardID := c.Param("id")
	if _, err := h.board(ctx, h.identity(c).UID, boardID); err != nil {
		return h.fail(c, err)
	}
	var req nameRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	name, err := state.RequireText("list name", req.Name)
	if err != nil {
		return h.fail(c, err)
	}
	list, err := h.repo.CreateList(ctx, boardID, name)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, list)
}

func (h *Handler) renameList(c echo.Context) error {
	ctx := c.Request().Context()
	listID := c.Param("id")
	if _, err := h.list(ctx, h.identity(c).UID, listID); err != nil {
		return h.fail(c, err)
	}
	var req nameRequest
	if err := decode(c, &req); err != nil {
		return h.fail(c, err)
	}
	name, err := state.RequireText("list name", req.Name)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.repo.RenameList(ctx, listID, name); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) deleteList(c echo.Context) error {
	ctx := c.Request().Context()
	listID := c.Param("id")
	if _, err := h.list(ctx, h.identity(c).UID, listID); err != nil {
		return h.fail(c, err)
	}
	if err := h.repo.DeleteList(ctx, listID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) serveObject(c echo.Context) error {
	key, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return h.fail(c, repository.ValidationError("malformed object key"))
	}
	data, contentType, err := h.objects.Open(key)
	if err != nil {
		return h.fail(c, err)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return c.Blob(http.StatusOK, contentType, data)
}
