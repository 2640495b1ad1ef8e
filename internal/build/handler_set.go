package build

import (
	"context"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// HandlerSet fans every log record out to a list of btclog handlers. It is how
// the console and the rotating log file receive the same stream.
type HandlerSet struct {
	level btclog.Level
	set   []btclogv2.Handler
}

// NewHandlerSet groups the given handlers and puts them all at the Info level.
func NewHandlerSet(handlers ...btclogv2.Handler) *HandlerSet {
	h := &HandlerSet{set: handlers}
	h.SetLevel(btclog.LevelInfo)

	return h
}

// mapHandlers builds a new set by applying f to every member.
func (h *HandlerSet) mapHandlers(
	f func(btclogv2.Handler) btclogv2.Handler) *HandlerSet {

	out := &HandlerSet{
		level: h.level,
		set:   make([]btclogv2.Handler, len(h.set)),
	}
	for i, handler := range h.set {
		out.set[i] = f(handler)
	}

	return out
}

// Enabled reports whether every member handles records at the level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	return slogSet(h.slogHandlers()).Enabled(ctx, level)
}

// Handle passes the record to every member, stopping at the first error.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	return slogSet(h.slogHandlers()).Handle(ctx, record)
}

// WithAttrs returns a plain slog fan-out with the attributes applied.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return slogSet(h.slogHandlers()).WithAttrs(attrs)
}

// WithGroup returns a plain slog fan-out with the group applied.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	return slogSet(h.slogHandlers()).WithGroup(name)
}

// SubSystem tags every member with the given subsystem.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	return h.mapHandlers(func(handler btclogv2.Handler) btclogv2.Handler {
		return handler.SubSystem(tag)
	})
}

// WithPrefix prefixes every message of every member.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	return h.mapHandlers(func(handler btclogv2.Handler) btclogv2.Handler {
		return handler.WithPrefix(prefix)
	})
}

// SetLevel changes the level of every member.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.set {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the level last applied through SetLevel.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

func (h *HandlerSet) slogHandlers() []slog.Handler {
	out := make([]slog.Handler, len(h.set))
	for i, handler := range h.set {
		out[i] = handler
	}

	return out
}

// Ensure HandlerSet implements btclog.Handler at compile time.
var _ btclogv2.Handler = (*HandlerSet)(nil)

// slogSet is the slog-only fan-out produced by WithAttrs and WithGroup, which
// have to return plain slog handlers.
type slogSet []slog.Handler

// Enabled reports whether every member handles records at the level.
func (s slogSet) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range s {
		if !handler.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

// Handle passes the record to every member, stopping at the first error.
func (s slogSet) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range s {
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}

	return nil
}

// WithAttrs applies the attributes to every member.
func (s slogSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(slogSet, len(s))
	for i, handler := range s {
		out[i] = handler.WithAttrs(attrs)
	}

	return out
}

// WithGroup applies the group to every member.
func (s slogSet) WithGroup(name string) slog.Handler {
	out := make(slogSet, len(s))
	for i, handler := range s {
		out[i] = handler.WithGroup(name)
	}

	return out
}

// Ensure slogSet implements slog.Handler at compile time.
var _ slog.Handler = slogSet(nil)
