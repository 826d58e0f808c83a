// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Azure/iothub-client-go/internal/log"
)

type (
	logger struct{ log.Logger }

	// Task errors such as a failed connection attempt carry their own
	// attributes, e.g. the status reason reported to the application.
	attributed interface{ Attrs() []slog.Attr }
)

func (l *logger) attempt(ctx context.Context, task string, attempt uint64) {
	l.Debug(ctx, "attempt started",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
	)
}

// backoff logs a failed attempt that will be retried after wait.
func (l *logger) backoff(
	ctx context.Context,
	task string,
	attempt uint64,
	wait time.Duration,
	err error,
) {
	if !l.Enabled(ctx, slog.LevelInfo) {
		return
	}
	attrs := []slog.Attr{
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.Duration("wait", wait),
	}
	l.Info(ctx, "attempt failed; retrying", append(attrs, errorAttrs(err)...)...)
}

func (l *logger) complete(
	ctx context.Context,
	task string,
	attempt uint64,
	err error,
) {
	if err == nil {
		done := []slog.Attr{
			slog.String("task", task),
			slog.Uint64("attempts", attempt),
		}
		// Only worth an info line when it took more than one go.
		if attempt > 1 {
			l.Info(ctx, "attempt succeeded", done...)
		} else {
			l.Debug(ctx, "attempt succeeded", done...)
		}
		return
	}

	attrs := []slog.Attr{
		slog.String("task", task),
		slog.Uint64("attempts", attempt),
	}
	l.Warn(ctx, "giving up", append(attrs, errorAttrs(err)...)...)
}

func errorAttrs(err error) []slog.Attr {
	attrs := []slog.Attr{slog.String("error", err.Error())}
	var a attributed
	if errors.As(err, &a) {
		attrs = append(attrs, a.Attrs()...)
	}
	return attrs
}
