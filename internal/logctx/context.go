// Package logctx carries a [zerolog.Logger] through a [context.Context],
// so request-scoped fields attach to every log line without threading a
// logger argument through every call.
package logctx

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey struct{}

var key = ctxKey{}

// WithLogger returns a copy of ctx carrying l.
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, key, l)
}

// From returns the logger stored in ctx, or the global logger if none was stored.
func From(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(key).(zerolog.Logger); ok {
		return l
	}
	return log.Logger
}
