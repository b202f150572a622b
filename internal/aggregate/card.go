package aggregate

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/stream"
)

// CardSource provides the subscriptions behind a card detail view.
type CardSource interface {
	WatchCard(ctx context.Context, cardID string) <-chan stream.Update[models.Card]
	WatchChecklists(ctx context.Context, cardID string) <-chan stream.Update[[]models.Checklist]
	WatchComments(ctx context.Context, cardID string) <-chan stream.Update[[]models.Comment]
}

type CardDetail struct {
	Card       models.Card        `json:"card"`
	Checklists []models.Checklist `json:"checklists"`
	Comments   []models.Comment   `json:"comments"`
	Progress   float64            `json:"progress"`
}

// WatchCardDetail combines a card with its checklists and comments. It
// follows the same rules as Watch: nothing is emitted until all three
// subscriptions have delivered, and the first error ends the stream.
func WatchCardDetail(ctx context.Context, src CardSource, cardID string) <-chan stream.Update[CardDetail] {
	out := stream.NewPipe[CardDetail](ctx)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()

		cardCh := src.WatchCard(subCtx, cardID)
		checklistsCh := src.WatchChecklists(subCtx, cardID)
		commentsCh := src.WatchComments(subCtx, cardID)

		var (
			card       *models.Card
			checklists []models.Checklist
			comments   []models.Comment
			haveLists  bool
			haveNotes  bool
		)
		fail := func(err error) {
			log.WithError(err).WithField("card", cardID).Debug("card subscription failed")
			out.Fail(err)
		}
		ended := func(what string) {
			if subCtx.Err() == nil {
				fail(fmt.Errorf("%s subscription of card %s ended", what, cardID))
			}
		}

		for {
			select {
			case <-subCtx.Done():
				return
			case u, ok := <-cardCh:
				if !ok {
					ended("card")
					return
				}
				if u.Err != nil {
					fail(u.Err)
					return
				}
				c := u.Value
				card = &c
			case u, ok := <-checklistsCh:
				if !ok {
					ended("checklists")
					return
				}
				if u.Err != nil {
					fail(u.Err)
					return
				}
				checklists, haveLists = u.Value, true
			case u, ok := <-commentsCh:
				if !ok {
					ended("comments")
					return
				}
				if u.Err != nil {
					fail(u.Err)
					return
				}
				comments, haveNotes = u.Value, true
			}

			if card == nil || !haveLists || !haveNotes {
				continue
			}
			out.Send(CardDetail{
				Card:       *card,
				Checklists: checklists,
				Comments:   models.SortComments(comments),
				Progress:   models.ChecklistsProgress(checklists),
			})
		}
	}()
	return out.C()
}
