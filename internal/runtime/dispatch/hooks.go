package dispatch

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/streamroute/internal/runtime/logging"
	"github.com/drblury/streamroute/internal/runtime/stream"
)

// JobContext describes one handler invocation to hooks.
type JobContext struct {
	// Group is the name of the handler group that matched.
	Group string
	// HandlerIndex is the handler's position within the group.
	HandlerIndex int
	// InvocationID uniquely identifies this invocation.
	InvocationID string
	// EventID and Kind come from the routed event.
	EventID string
	Kind    stream.Kind
	// Context is the context passed to the handler.
	Context context.Context
	// StartedAt is when the first attempt began.
	StartedAt time.Time
	// Duration covers all attempts (only set in OnJobDone and OnJobError).
	Duration time.Duration
	// Attempts is the number of times the handler ran (only set in OnJobDone and OnJobError).
	Attempts int
}

// JobHooks defines callbacks for the invocation lifecycle.
// All hooks are optional; nil hooks are not called.
type JobHooks struct {
	// OnJobStart is called once before the first attempt.
	OnJobStart func(ctx JobContext)

	// OnJobDone is called when the handler eventually succeeds.
	OnJobDone func(ctx JobContext)

	// OnJobError is called with the final error once retries are exhausted.
	OnJobError func(ctx JobContext, err error)
}

// Merge combines two JobHooks. The hooks from other run after those of h.
func (h JobHooks) Merge(other JobHooks) JobHooks {
	return JobHooks{
		OnJobStart: chainHooks(h.OnJobStart, other.OnJobStart),
		OnJobDone:  chainHooks(h.OnJobDone, other.OnJobDone),
		OnJobError: chainErrorHooks(h.OnJobError, other.OnJobError),
	}
}

func chainHooks(a, b func(JobContext)) func(JobContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx JobContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(JobContext, error)) func(JobContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx JobContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h JobHooks) start(ctx JobContext) {
	if h.OnJobStart != nil {
		h.OnJobStart(ctx)
	}
}

func (h JobHooks) finish(ctx JobContext, err error) {
	if err != nil {
		if h.OnJobError != nil {
			h.OnJobError(ctx, err)
		}
		return
	}
	if h.OnJobDone != nil {
		h.OnJobDone(ctx)
	}
}

// LoggingHooks returns hooks that log the invocation lifecycle.
func LoggingHooks(logger loggingpkg.ServiceLogger) JobHooks {
	return JobHooks{
		OnJobStart: func(ctx JobContext) {
			logger.Debug("Handler started", loggingpkg.LogFields{
				"group":         ctx.Group,
				"handler_index": ctx.HandlerIndex,
				"event_id":      ctx.EventID,
				"invocation_id": ctx.InvocationID,
			})
		},
		OnJobDone: func(ctx JobContext) {
			logger.Info("Handler completed", loggingpkg.LogFields{
				"group":         ctx.Group,
				"handler_index": ctx.HandlerIndex,
				"event_id":      ctx.EventID,
				"invocation_id": ctx.InvocationID,
				"duration_ms":   ctx.Duration.Milliseconds(),
				"attempts":      ctx.Attempts,
			})
		},
		OnJobError: func(ctx JobContext, err error) {
			logger.Error("Handler failed", err, loggingpkg.LogFields{
				"group":         ctx.Group,
				"handler_index": ctx.HandlerIndex,
				"event_id":      ctx.EventID,
				"invocation_id": ctx.InvocationID,
				"duration_ms":   ctx.Duration.Milliseconds(),
				"attempts":      ctx.Attempts,
			})
		},
	}
}

// MetricsHooks returns hooks that forward the group name and event kind to
// the supplied counters.
func MetricsHooks(onStart, onDone, onError func(group string, kind stream.Kind)) JobHooks {
	return JobHooks{
		OnJobStart: func(ctx JobContext) {
			if onStart != nil {
				onStart(ctx.Group, ctx.Kind)
			}
		},
		OnJobDone: func(ctx JobContext) {
			if onDone != nil {
				onDone(ctx.Group, ctx.Kind)
			}
		},
		OnJobError: func(ctx JobContext, _ error) {
			if onError != nil {
				onError(ctx.Group, ctx.Kind)
			}
		},
	}
}
