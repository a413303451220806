package engine

import (
	"context"

	"github.com/coinhunt/roomengine/internal/geo"
	"github.com/coinhunt/roomengine/pkg/core"
	"golang.org/x/exp/slices"
)

// Grab claims coin id in room. Exactly one concurrent caller per coin gets the
// coin; every other caller gets ErrNotFound.
//
// Removal from room state decides the winner. The index entry is removed at
// the tail of the same critical section; if that fails the grab still stands
// and the member is kept as cleanup debt. The grab event is delivered to
// subscribers before Grab returns.
func (e *Engine) Grab(ctx context.Context, name string, id int) (core.Coin, error) {
	if id <= 0 {
		e.metrics.misses.Add(ctx, 1, roomAttr(name))
		return core.Coin{}, ErrNotFound
	}
	r := e.room(name)
	if r == nil {
		e.metrics.misses.Add(ctx, 1, roomAttr(name))
		return core.Coin{}, ErrNotFound
	}

	coin, ok := e.take(ctx, r, id)
	if !ok {
		e.metrics.misses.Add(ctx, 1, roomAttr(name))
		return core.Coin{}, ErrNotFound
	}

	e.metrics.grabbed.Add(ctx, 1, roomAttr(name))
	e.flush(ctx)
	return coin, nil
}

func (e *Engine) take(ctx context.Context, r *room, id int) (core.Coin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := e.opts.Now()
	if r.lapsed(now) {
		return core.Coin{}, false
	}
	i := slices.IndexFunc(r.coins, func(c core.Coin) bool { return c.ID == id })
	if i < 0 {
		return core.Coin{}, false
	}

	coin := r.coins[i]
	r.coins = slices.Delete(r.coins, i, i+1)
	e.outbox.Push(core.GrabEvent{Coin: coin, Seq: e.seq.Add(1), At: now})

	member := geo.MemberKey(id)
	ictx, cancel := e.indexCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := e.index.GeoRemove(ictx, r.name, member); err != nil {
		r.debt = append(r.debt, member)
		e.metrics.indexErrors.Add(ctx, 1, roomAttr(r.name))
		e.log.Warn("Index removal failed after grab, will retry", "room", r.name, "member", member, "error", err)
	}
	return coin, true
}

// flush delivers queued grab events in commit order. Holding flushMu across
// delivery keeps concurrent flushers from reordering events.
func (e *Engine) flush(ctx context.Context) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	events := e.outbox.Drain()
	if len(events) == 0 {
		return
	}

	e.notifyMu.RLock()
	notifiers := e.notifiers
	e.notifyMu.RUnlock()

	for _, ev := range events {
		e.log.Debug("Coin grabbed", "room", ev.Coin.Room, "id", ev.Coin.ID, "seq", ev.Seq)
		for _, n := range notifiers {
			n.NotifyGrab(ctx, ev)
		}
	}
}
