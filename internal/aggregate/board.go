// Package aggregate fans a board's subscriptions out and folds their
// deliveries back into single consistent snapshots.
package aggregate

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ytakahashi/boardsync/internal/models"
	"github.com/ytakahashi/boardsync/internal/stream"
)

// Source provides the live subscriptions a board snapshot is built from.
type Source interface {
	WatchBoard(ctx context.Context, boardID string) <-chan stream.Update[models.Board]
	WatchLists(ctx context.Context, boardID string) <-chan stream.Update[[]models.List]
	WatchCards(ctx context.Context, listID string) <-chan stream.Update[[]models.Card]
}

// Snapshot is one combined read of a board. CardsByList has an entry for
// every list in Lists.
type Snapshot struct {
	Board       models.Board             `json:"board"`
	Lists       []models.List            `json:"lists"`
	CardsByList map[string][]models.Card `json:"cardsByList"`
}

// Watch streams snapshots of boardID. It subscribes to the board, to its
// lists, and to the cards of every list currently on the board, following
// list additions and removals. A snapshot is produced once the board, the
// lists and every tracked list's cards have each been delivered at least
// once, and again on every later delivery. The first error from any
// subscription is delivered and ends the stream; every subscription is
// closed when that happens or when ctx is done.
func Watch(ctx context.Context, src Source, boardID string) <-chan stream.Update[Snapshot] {
	out := stream.NewPipe[Snapshot](ctx)
	subCtx, cancel := context.WithCancel(ctx)
	w := &boardWatch{
		src:     src,
		boardID: boardID,
		out:     out,
		subs:    map[string]*cardSub{},
		msgs:    make(chan cardMsg),
	}
	go func() {
		defer cancel()
		w.run(subCtx)
	}()
	return out.C()
}

type cardSub struct {
	seq    uint64
	cancel context.CancelFunc
	cards  []models.Card
	ready  bool
}

type cardMsg struct {
	listID string
	seq    uint64
	update stream.Update[[]models.Card]
	closed bool
}

type boardWatch struct {
	src     Source
	boardID string
	out     *stream.Pipe[Snapshot]

	board      *models.Board
	lists      []models.List
	listsReady bool

	subs map[string]*cardSub
	seq  uint64
	msgs chan cardMsg
}

func (w *boardWatch) run(ctx context.Context) {
	defer w.closeSubs()

	boardCh := w.src.WatchBoard(ctx, w.boardID)
	listsCh := w.src.WatchLists(ctx, w.boardID)

	for {
		select {
		case <-ctx.Done():
			return

		case u, ok := <-boardCh:
			if !ok {
				w.ended(ctx, "board")
				return
			}
			if u.Err != nil {
				w.fail(u.Err)
				return
			}
			board := u.Value
			w.board = &board

		case u, ok := <-listsCh:
			if !ok {
				w.ended(ctx, "lists")
				return
			}
			if u.Err != nil {
				w.fail(u.Err)
				return
			}
			w.lists = u.Value
			w.listsReady = true
			w.track(ctx)

		case m := <-w.msgs:
			sub, ok := w.subs[m.listID]
			if !ok || sub.seq != m.seq {
				continue
			}
			if m.closed {
				w.ended(ctx, "cards of list "+m.listID)
				return
			}
			if m.update.Err != nil {
				w.fail(m.update.Err)
				return
			}
			sub.cards = m.update.Value
			sub.ready = true
		}

		w.publish()
	}
}

// track makes the set of card subscriptions match the current lists.
func (w *boardWatch) track(ctx context.Context) {
	current := make(map[string]bool, len(w.lists))
	for _, l := range w.lists {
		current[l.ID] = true
	}
	for id, sub := range w.subs {
		if !current[id] {
			sub.cancel()
			delete(w.subs, id)
		}
	}
	for _, l := range w.lists {
		if _, ok := w.subs[l.ID]; !ok {
			w.open(ctx, l.ID)
		}
	}
}

func (w *boardWatch) open(ctx context.Context, listID string) {
	subCtx, cancel := context.WithCancel(ctx)
	w.seq++
	seq := w.seq
	w.subs[listID] = &cardSub{seq: seq, cancel: cancel}

	ch := w.src.WatchCards(subCtx, listID)
	go func() {
		for {
			var m cardMsg
			select {
			case <-subCtx.Done():
				return
			case u, ok := <-ch:
				m = cardMsg{listID: listID, seq: seq, update: u, closed: !ok}
			}
			select {
			case <-subCtx.Done():
				return
			case w.msgs <- m:
			}
			if m.closed || m.update.Err != nil {
				return
			}
		}
	}()
}

func (w *boardWatch) publish() {
	if w.board == nil || !w.listsReady {
		return
	}
	var cards []models.Card
	for _, l := range w.lists {
		sub := w.subs[l.ID]
		if sub == nil || !sub.ready {
			return
		}
		cards = append(cards, sub.cards...)
	}
	lists := make([]models.List, len(w.lists))
	copy(lists, w.lists)
	w.out.Send(Snapshot{
		Board:       *w.board,
		Lists:       lists,
		CardsByList: models.GroupCardsByList(lists, cards),
	})
}

func (w *boardWatch) fail(err error) {
	log.WithError(err).WithField("board", w.boardID).Debug("board subscription failed")
	w.out.Fail(err)
}

// ended handles an input channel closing without an error. That only
// happens on cancellation; anything else is reported as a failure.
func (w *boardWatch) ended(ctx context.Context, what string) {
	if ctx.Err() != nil {
		return
	}
	w.fail(fmt.Errorf("%s subscription of board %s ended", what, w.boardID))
}

func (w *boardWatch) closeSubs() {
	for id, sub := range w.subs {
		sub.cancel()
		delete(w.subs, id)
	}
}
