// Package engine owns the room state table and arbitrates coin grabs.
//
// Each room is an independent unit of concurrency: generation, grabs and
// expiry take the room's own lock, and the geospatial index is kept coherent
// with the in-process coins under that lock.
package engine

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coinhunt/roomengine/internal/geo"
	"github.com/coinhunt/roomengine/internal/queue"
	"github.com/coinhunt/roomengine/internal/storage"
	"github.com/coinhunt/roomengine/pkg/core"
)

// Notifier receives committed grabs in commit order. Implementations must not
// call back into Grab.
type Notifier interface {
	NotifyGrab(ctx context.Context, ev core.GrabEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev core.GrabEvent)

func (f NotifierFunc) NotifyGrab(ctx context.Context, ev core.GrabEvent) { f(ctx, ev) }

// Options tunes an Engine. Zero values take the defaults below.
type Options struct {
	TTL           time.Duration // default 1h
	IndexTimeout  time.Duration // default 2s
	SweepInterval time.Duration // default 30s
	Projection    geo.Projection
	Logger        *slog.Logger
	Now           func() time.Time
	IntN          func(n int) int // uniform in [0, n)
}

func (o *Options) withDefaults() {
	if o.TTL <= 0 {
		o.TTL = time.Hour
	}
	if o.IndexTimeout <= 0 {
		o.IndexTimeout = 2 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	if o.Projection == (geo.Projection{}) {
		o.Projection = geo.DefaultProjection
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.IntN == nil {
		o.IntN = rand.IntN
	}
}

// Engine is the room state table plus the operations on it.
type Engine struct {
	opts  Options
	index storage.Backend
	log   *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*room

	seq     atomic.Uint64
	outbox  *queue.Queue[core.GrabEvent]
	flushMu sync.Mutex

	notifyMu  sync.RWMutex
	notifiers []Notifier

	metrics *metrics
}

// New builds an Engine over index. The index must already be initialized.
func New(index storage.Backend, opts Options) (*Engine, error) {
	opts.withDefaults()
	e := &Engine{
		opts:   opts,
		index:  index,
		log:    opts.Logger.With("component", "engine"),
		rooms:  make(map[string]*room),
		outbox: queue.New[core.GrabEvent](),
	}
	m, err := newMetrics(e)
	if err != nil {
		return nil, err
	}
	e.metrics = m
	return e, nil
}

// Subscribe registers n to receive every committed grab.
func (e *Engine) Subscribe(n Notifier) {
	e.notifyMu.Lock()
	e.notifiers = append(e.notifiers, n)
	e.notifyMu.Unlock()
}

func (e *Engine) room(name string) *room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rooms[name]
}

func (e *Engine) roomOrCreate(name string) *room {
	if r := e.room(name); r != nil {
		return r
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.rooms[name]; ok {
		return r
	}
	r := &room{name: name}
	e.rooms[name] = r
	return r
}

func (e *Engine) snapshot() []*room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*room, 0, len(e.rooms))
	for _, r := range e.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (e *Engine) indexCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.IndexTimeout)
}

// ListAvailable returns a copy of a room's live coins in insertion order.
// ok is false for a room that was never generated.
func (e *Engine) ListAvailable(name string) (coins []core.Coin, ok bool) {
	r := e.room(name)
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live(e.opts.Now()), true
}

// Rooms summarizes every known room, sorted by name.
func (e *Engine) Rooms() []core.RoomSummary {
	rooms := e.snapshot()
	now := e.opts.Now()
	out := make([]core.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		r.mu.RLock()
		out = append(out, r.summary(now))
		r.mu.RUnlock()
	}
	return out
}

// RoomNames lists every known room, sorted.
func (e *Engine) RoomNames() []string {
	rooms := e.snapshot()
	names := make([]string, len(rooms))
	for i, r := range rooms {
		names[i] = r.name
	}
	return names
}

// Room summarizes one room.
func (e *Engine) Room(name string) (core.RoomSummary, bool) {
	r := e.room(name)
	if r == nil {
		return core.RoomSummary{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary(e.opts.Now()), true
}

// OutboxLen reports grab events committed but not yet delivered.
func (e *Engine) OutboxLen() int {
	return e.outbox.Len()
}

// CleanupDebt reports index removals that failed and await retry.
func (e *Engine) CleanupDebt() int {
	n := 0
	for _, r := range e.snapshot() {
		r.mu.RLock()
		n += len(r.debt)
		if r.dropKey {
			n++
		}
		r.mu.RUnlock()
	}
	return n
}

// Coherent reports whether a room's live coins and its index members agree.
func (e *Engine) Coherent(ctx context.Context, name string) (bool, error) {
	want := map[string]struct{}{}
	r := e.room(name)
	if r != nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, c := range r.live(e.opts.Now()) {
			want[geo.MemberKey(c.ID)] = struct{}{}
		}
	}

	ictx, cancel := e.indexCtx(ctx)
	defer cancel()
	members, err := e.index.Members(ictx, name)
	if err != nil {
		return false, indexErr("members", name, err)
	}
	if len(members) != len(want) {
		return false, nil
	}
	for _, m := range members {
		if _, ok := want[m]; !ok {
			return false, nil
		}
	}
	return true, nil
}
