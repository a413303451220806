package engine

import (
	"context"
	"errors"
	"time"

	"github.com/coinhunt/roomengine/internal/storage"
)

// ExpireRooms clears the coins of every room whose TTL has lapsed at now.
// Expired rooms stay known with zero coins. Returns the number of rooms cleared.
func (e *Engine) ExpireRooms(ctx context.Context, now time.Time) int {
	n := 0
	for _, r := range e.snapshot() {
		r.mu.Lock()
		if !r.expired && !r.expiresAt.IsZero() && !now.Before(r.expiresAt) {
			r.expired = true
			r.clear()
			n++
			e.metrics.expired.Add(ctx, 1, roomAttr(r.name))
			e.log.Info("Room expired", "room", r.name, "expiresAt", r.expiresAt)
		}
		r.mu.Unlock()
	}
	return n
}

// RetryCleanup re-attempts index removals that failed earlier and returns
// the debt still outstanding.
func (e *Engine) RetryCleanup(ctx context.Context) int {
	left := 0
	for _, r := range e.snapshot() {
		r.mu.Lock()
		left += e.retryRoom(ctx, r)
		r.mu.Unlock()
	}
	return left
}

// retryRoom settles r's debt. Caller holds r.mu.
func (e *Engine) retryRoom(ctx context.Context, r *room) int {
	if !r.dropKey && len(r.debt) == 0 {
		return 0
	}
	ictx, cancel := e.indexCtx(ctx)
	defer cancel()

	if r.dropKey {
		if err := e.index.Delete(ictx, r.name); err != nil {
			e.log.Warn("Index key drop retry failed", "room", r.name, "error", err)
			return 1 + len(r.debt)
		}
		r.dropKey = false
	}
	if len(r.debt) > 0 {
		if err := e.index.GeoRemove(ictx, r.name, r.debt...); err != nil {
			e.log.Warn("Index cleanup retry failed", "room", r.name, "members", len(r.debt), "error", err)
			return len(r.debt)
		}
		e.log.Info("Index cleanup settled", "room", r.name, "members", len(r.debt))
		r.debt = nil
	}
	return 0
}

// Run expires rooms, sweeps the index and retries cleanup every
// SweepInterval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep runs one janitor pass.
func (e *Engine) Sweep(ctx context.Context) {
	now := e.opts.Now()
	e.ExpireRooms(ctx, now)

	if sw, ok := e.index.(storage.Sweeper); ok {
		ictx, cancel := e.indexCtx(ctx)
		if _, err := sw.Sweep(ictx, now); err != nil && !errors.Is(err, context.Canceled) {
			e.metrics.indexErrors.Add(ctx, 1)
			e.log.Warn("Index sweep failed", "error", err)
		}
		cancel()
	}

	e.RetryCleanup(ctx)
}
