package scraper

import (
	"context"
	"log/slog"
)

// Attempt runs fn and returns its value, or fallback when fn fails or panics.
// The failure is logged and never propagated.
func Attempt[T any](ctx context.Context, source string, fallback T, fn func(context.Context) (T, error)) (result T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("upstream call panicked",
				slog.String("source", source),
				slog.Any("panic", r),
			)
			result = fallback
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		slog.Debug("upstream call failed",
			slog.String("source", source),
			slog.String("category", ErrorLabel(err)),
			slog.Any("error", err),
		)
		return fallback
	}
	return v
}
