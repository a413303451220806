package logging

import (
	"context"
	"errors"
	"log/slog"
)

// FanoutHandler forwards each record to every wrapped handler that accepts its level.
type FanoutHandler struct {
	sinks []slog.Handler
}

// NewFanoutHandler drops nil handlers and wraps the rest.
func NewFanoutHandler(handlers ...slog.Handler) *FanoutHandler {
	sinks := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			sinks = append(sinks, h)
		}
	}
	return &FanoutHandler{sinks: sinks}
}

func (f *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.sinks {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to all enabled sinks. A failing sink does not stop delivery
// to the others; their errors are joined.
func (f *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.sinks {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *FanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *FanoutHandler) each(fn func(slog.Handler) slog.Handler) *FanoutHandler {
	sinks := make([]slog.Handler, len(f.sinks))
	for i, h := range f.sinks {
		sinks[i] = fn(h)
	}
	return &FanoutHandler{sinks: sinks}
}

// AttrSource returns attributes computed at log time, e.g. live room counts.
type AttrSource func() []slog.Attr

// ContextHandler appends the attributes from an AttrSource to every record.
type ContextHandler struct {
	next   slog.Handler
	source AttrSource
}

func NewContextHandler(next slog.Handler, source AttrSource) *ContextHandler {
	return &ContextHandler{next: next, source: source}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.source != nil {
		r.AddAttrs(h.source()...)
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs), source: h.source}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{next: h.next.WithGroup(name), source: h.source}
}
