package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/ytakahashi/boardsync/internal/auth"
	"github.com/ytakahashi/boardsync/internal/photos"
	"github.com/ytakahashi/boardsync/internal/repository"
	"github.com/ytakahashi/boardsync/internal/state"
)

const maxBodySize = 1 << 20

// PingInterval is how often an idle event stream gets a keep-alive comment.
var PingInterval = 25 * time.Second

// ObjectOpener serves uploaded objects when the object store is in-process.
type ObjectOpener interface {
	Open(key string) ([]byte, string, error)
}

type Handler struct {
	repo     *repository.Repository
	verifier auth.Verifier
	photos   photos.Lister
	objects  ObjectOpener
}

func NewHandler(repo *repository.Repository, verifier auth.Verifier, photos photos.Lister, objects ObjectOpener) *Handler {
	return &Handler{
		repo:     repo,
		verifier: verifier,
		photos:   photos,
		objects:  objects,
	}
}

// Register wires every route onto e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.objects != nil {
		e.GET("/objects/*", h.serveObject)
	}

	api := e.Group("/api", h.authenticate)

	api.POST("/session", h.createSession)
	api.GET("/profile", h.getProfile)
	api.PATCH("/profile", h.updateProfile)

	api.GET("/boards/stream", h.streamBoards)
	api.POST("/boards", h.createBoard)
	api.GET("/boards/:id", h.getBoard)
	api.PATCH("/boards/:id", h.updateBoard)
	api.DELETE("/boards/:id", h.deleteBoard)
	api.POST("/boards/:id/members", h.addMember)
	api.DELETE("/boards/:id/members/:uid", h.removeMember)
	api.POST("/boards/:id/background", h.uploadBackground)
	api.GET("/boards/:id/stream", h.streamBoard)
	api.POST("/boards/:id/lists", h.createList)

	api.PATCH("/lists/:id", h.renameList)
	api.DELETE("/lists/:id", h.deleteList)
	api.POST("/lists/:id/cards", h.createCard)

	api.GET("/cards/:id/stream", h.streamCard)
	api.PATCH("/cards/:id", h.updateCard)
	api.DELETE("/cards/:id", h.deleteCard)
	api.POST("/cards/:id/move", h.moveCard)
	api.PUT("/cards/:id/location", h.setLocation)
	api.POST("/cards/:id/assignees", h.assign)
	api.DELETE("/cards/:id/assignees/:uid", h.unassign)
	api.POST("/cards/:id/checklists", h.createChecklist)
	api.POST("/cards/:id/comments", h.addComment)

	api.POST("/checklists/:id/items", h.addChecklistItem)
	api.PATCH("/checklists/:id/items/:itemId", h.updateChecklistItem)
	api.DELETE("/checklists/:id/items/:itemId", h.removeChecklistItem)
	api.DELETE("/checklists/:id", h.deleteChecklist)

	api.DELETE("/comments/:id", h.deleteComment)

	api.GET("/photos", h.listPhotos)
}

// authenticate verifies the ID token and stores the identity in the request
// context. Event streams may pass the token as a query parameter.
func (h *Handler) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := auth.ExtractIDToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if token == "" {
			token = c.QueryParam("token")
		}
		if token == "" {
			return h.fail(c, auth.ErrUnauthenticated)
		}
		id, err := h.verifier.Verify(c.Request().Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				err = fmt.Errorf("%w: %v", auth.ErrUnauthenticated, err)
			}
			return h.fail(c, err)
		}
		req := c.Request()
		c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), id)))
		return next(c)
	}
}

func (h *Handler) identity(c echo.Context) auth.Identity {
	id, _ := auth.FromContext(c.Request().Context())
	return id
}

func (h *Handler) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	default:
		log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func decode(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return repository.ValidationError(fmt.Sprintf("invalid body: %v", err))
	}
	return nil
}

// streamStates runs holder for the lifetime of the request and writes every state
// as an event. A failed state is written and then ends the stream; the client
// retries by reconnecting.
func streamStates[T any](c echo.Context, holder *state.Holder[T]) error {
	ctx := c.Request().Context()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	res.WriteHeader(http.StatusOK)

	holder.Start(ctx)
	defer holder.Close()
	states, cancel := holder.Subscribe()
	defer cancel()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := res.Write([]byte(": ping\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case s, ok := <-states:
			if !ok {
				return nil
			}
			data, err := sonic.Marshal(s)
			if err != nil {
				log.WithError(err).Error("failed to encode state")
				return nil
			}
			if _, err := res.Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := res.Write(data); err != nil {
				return nil
			}
			if _, err := res.Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
			if s.Phase == state.Failed {
				return nil
			}
		}
	}
}
