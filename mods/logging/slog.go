package logging

import (
	"context"
	"fmt"
	"log/slog"
)

// Wrap exposes a Log as *slog.Logger. Records rejected by filter are dropped.
func Wrap(l Log, filter func(string, context.Context, slog.Record) bool) *slog.Logger {
	h, ok := l.(*levelLogger)
	if !ok {
		return slog.Default()
	}
	clone := *h
	clone.filter = filter
	return slog.New(&clone)
}

func (ll *levelLogger) Enabled(ctx context.Context, level slog.Level) bool {
	return ll.LogEnabled(fromSlogLevel(level))
}

func (ll *levelLogger) Handle(ctx context.Context, r slog.Record) error {
	if ll.filter != nil && !ll.filter(ll.name, ctx, r) {
		return nil
	}
	args := []any{r.Message}
	r.Attrs(func(a slog.Attr) bool {
		args = append(args, fmt.Sprintf("%v=%v", a.Key, a.Value))
		return true
	})
	ll._log(fromSlogLevel(r.Level), args)
	return nil
}

func (ll *levelLogger) WithAttrs(attrs []slog.Attr) slog.Handler {
	ret := *ll
	ret.attrs = append(append([]slog.Attr{}, ll.attrs...), attrs...)
	return &ret
}

func (ll *levelLogger) WithGroup(name string) slog.Handler {
	if name == "" {
		return ll
	}
	ret := *ll
	ret.name = ll.name + "/" + name
	return &ret
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level < slog.LevelInfo:
		return LevelDebug
	case level < slog.LevelWarn:
		return LevelInfo
	case level < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}
