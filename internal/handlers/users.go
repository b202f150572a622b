package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/ytakahashi/boardsync/internal/repository"
	"github.com/ytakahashi/boardsync/internal/state"
)

// createSession records a sign-in: the user document is created or merged
// from the verified identity.
func (h *Handler) createSession(c echo.Context) error {
	id := h.identity(c)
	user, err := h.repo.SyncUserOnSignIn(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	log.WithField("user", id.UID).WithField("provider", id.Provider).Info("user signed in")
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) getProfile(c echo.Context) error {
	user, err := h.repo.CurrentUser(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) updateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	var patch repository.ProfilePatch
	if err := decode(c, &patch); err != nil {
		return h.fail(c, err)
	}
	if patch.DisplayName != nil {
		name, err := state.RequireText("display name", *patch.DisplayName)
		if err != nil {
			return h.fail(c, err)
		}
		patch.DisplayName = &name
	}
	if err := h.repo.UpdateProfile(ctx, patch); err != nil {
		return h.fail(c, err)
	}
	user, err := h.repo.CurrentUser(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *Handler) listPhotos(c echo.Context) error {
	if h.photos == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "photo search is not configured"})
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("perPage"))
	result, err := h.photos.ListPhotos(c.Request().Context(), page, perPage)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
