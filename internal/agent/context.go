package agent

import (
	"context"

	"github.com/finsightai/finsight/pkg/models"
)

type contextKey string

const emitterKey contextKey = "run_emitter"

// WithEmitter attaches a run event sink to the context so capabilities can
// publish attributed progress (e.g. per-analyst thinking streams) without
// depending on the engine.
func WithEmitter(ctx context.Context, emit func(models.RunEvent)) context.Context {
	if emit == nil {
		return ctx
	}
	return context.WithValue(ctx, emitterKey, emit)
}

// EmitterFromContext returns the attached run event sink, or a no-op sink
// when none is attached, so callers never nil-check.
func EmitterFromContext(ctx context.Context) func(models.RunEvent) {
	if emit, ok := ctx.Value(emitterKey).(func(models.RunEvent)); ok && emit != nil {
		return emit
	}
	return func(models.RunEvent) {}
}
