package logging

import (
	"context"
	"log/slog"
)

type ctxLoggerKey struct{}

func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}

func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return Default()
}

// Scope returns a context whose logger carries args on every record, along with
// that logger.
func Scope(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	logger := From(ctx).With(args...)
	return With(ctx, logger), logger
}
