package repository

import (
	"context"
	"fmt"
	"io"
	"path"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/store"
	"github.com/ytakahashi/boardsync/internal/stream"
)

func setBoardID(b *models.Board, id string) { b.ID = id }

// WatchBoards streams every board the current user is a member of. It ends
// with ErrUnauthenticated when there is no current user.
func (r *Repository) WatchBoards(ctx context.Context) <-chan stream.Update[[]models.Board] {
	user, err := r.currentUser(ctx)
	if err != nil {
		return failed[[]models.Board](err)
	}
	r.traceWatch(ctx, "WatchBoards", attribute.String("user.id", user.UID))
	q := store.Query{Collection: CollectionBoards, OrderBy: "createdAt"}.
		Where("memberIds", store.OpArrayContains, user.UID)
	return watchQuery(ctx, r.docs, q, setBoardID)
}

// WatchBoard streams one board document; a missing or deleted board ends
// the stream with ErrNotFound.
func (r *Repository) WatchBoard(ctx context.Context, boardID string) <-chan stream.Update[models.Board] {
	r.traceWatch(ctx, "WatchBoard", attribute.String("board.id", boardID))
	return watchDocument(ctx, r.docs, CollectionBoards, boardID, setBoardID)
}

func (r *Repository) GetBoard(ctx context.Context, boardID string) (board models.Board, err error) {
	ctx, span := r.start(ctx, "GetBoard", attribute.String("board.id", boardID))
	defer func() { end(span, err) }()

	snap, err := r.get(ctx, CollectionBoards, boardID)
	if err != nil {
		return models.Board{}, err
	}
	return decode(snap, setBoardID)
}

// CreateBoard stores a new board owned by the current user. The owner is
// always a member.
func (r *Repository) CreateBoard(ctx context.Context, board models.Board) (_ models.Board, err error) {
	ctx, span := r.start(ctx, "CreateBoard")
	defer func() { end(span, err) }()

	user, err := r.currentUser(ctx)
	if err != nil {
		return models.Board{}, err
	}
	board.OwnerID = user.UID
	if !board.HasMember(user.UID) {
		board.MemberIDs = append(append([]string{}, board.MemberIDs...), user.UID)
	}
	board.CreatedAt = r.now().UTC()

	id, err := r.docs.Add(ctx, CollectionBoards, board)
	if err != nil {
		return models.Board{}, fmt.Errorf("failed to create board: %w", err)
	}
	board.ID = id
	span.SetAttributes(attribute.String("board.id", id))
	return board, nil
}

// BoardPatch lists the board fields to change; nil fields are left as they are.
type BoardPatch struct {
	Name               *string `json:"name,omitempty"`
	BackgroundColor    *string `json:"backgroundColor,omitempty"`
	BackgroundImageURL *string `json:"backgroundImageUrl,omitempty"`
}

func (p BoardPatch) updates() []store.Update {
	var out []store.Update
	if p.Name != nil {
		out = append(out, store.Update{Path: "name", Value: *p.Name})
	}
	if p.BackgroundColor != nil {
		out = append(out, store.Update{Path: "backgroundColor", Value: *p.BackgroundColor})
	}
	if p.BackgroundImageURL != nil {
		if *p.BackgroundImageURL == "" {
			out = append(out, store.Update{Path: "backgroundImageUrl", Value: store.Delete})
		} else {
			out = append(out, store.Update{Path: "backgroundImageUrl", Value: *p.BackgroundImageURL})
		}
	}
	return out
}

func (r *Repository) UpdateBoard(ctx context.Context, boardID string, patch BoardPatch) (err error) {
	ctx, span := r.start(ctx, "UpdateBoard", attribute.String("board.id", boardID))
	defer func() { end(span, err) }()

	updates := patch.updates()
	if len(updates) == 0 {
		return nil
	}
	if err := r.docs.Update(ctx, CollectionBoards, boardID, updates); err != nil {
		return fmt.Errorf("failed to update board: %w", err)
	}
	return nil
}

// DeleteBoard removes only the board document. Its lists, cards, checklists
// and comments are left in place.
func (r *Repository) DeleteBoard(ctx context.Context, boardID string) (err error) {
	ctx, span := r.start(ctx, "DeleteBoard", attribute.String("board.id", boardID))
	defer func() { end(span, err) }()

	if err := r.docs.Delete(ctx, CollectionBoards, boardID); err != nil {
		return fmt.Errorf("failed to delete board: %w", err)
	}
	return nil
}

func (r *Repository) AddMember(ctx context.Context, boardID, userID string) (err error) {
	ctx, span := r.start(ctx, "AddMember", attribute.String("board.id", boardID), attribute.String("member.id", userID))
	defer func() { end(span, err) }()

	err = r.docs.Update(ctx, CollectionBoards, boardID, []store.Update{
		{Path: "memberIds", Value: store.ArrayUnion{userID}},
	})
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (r *Repository) RemoveMember(ctx context.Context, boardID, userID string) (err error) {
	ctx, span := r.start(ctx, "RemoveMember", attribute.String("board.id", boardID), attribute.String("member.id", userID))
	defer func() { end(span, err) }()

	err = r.docs.Update(ctx, CollectionBoards, boardID, []store.Update{
		{Path: "memberIds", Value: store.ArrayRemove{userID}},
	})
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// UploadBoardBackgroundImage stores the image under a unique key and returns
// its download URL. A failure to resolve the URL leaves the uploaded blob
// behind.
func (r *Repository) UploadBoardBackgroundImage(ctx context.Context, filename, contentType string, body io.Reader) (_ string, err error) {
	ctx, span := r.start(ctx, "UploadBoardBackgroundImage")
	defer func() { end(span, err) }()

	key := r.backgroundKey(filename)
	span.SetAttributes(attribute.String("object.key", key))
	if err := r.objects.Upload(ctx, key, contentType, body); err != nil {
		return "", fmt.Errorf("failed to upload background: %w", err)
	}
	url, err := r.objects.DownloadURL(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("uploaded background has no download URL")
		return "", fmt.Errorf("failed to resolve background URL: %w", err)
	}
	return url, nil
}

func (r *Repository) backgroundKey(filename string) string {
	return BackgroundPrefix + r.newID() + "_" + path.Base(filename)
}
