// Package dispatch runs the handlers selected by the router. It is an
// optional caller-side helper: the router itself never invokes handlers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/streamroute/internal/runtime/config"
	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
	"github.com/drblury/streamroute/internal/runtime/ids"
	loggingpkg "github.com/drblury/streamroute/internal/runtime/logging"
	"github.com/drblury/streamroute/internal/runtime/router"
)

// TracerName is the instrumentation name used when tracing is enabled from
// configuration.
const TracerName = "github.com/drblury/streamroute/dispatch"

// Dispatcher invokes the handlers of routed matches.
//
// Handlers of one match run sequentially in declared order and the first
// failing handler stops the rest of that match. Matches run in routing order,
// or up to the configured concurrency at once.
type Dispatcher struct {
	concurrency     int
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration

	logger  loggingpkg.ServiceLogger
	hooks   JobHooks
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConfig applies the dispatch, retry and tracing settings of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(d *Dispatcher) {
		if cfg == nil {
			return
		}
		d.concurrency = cfg.DispatchConcurrency
		d.maxRetries = cfg.RetryMaxRetries
		d.initialInterval = cfg.RetryInitialInterval
		d.maxInterval = cfg.RetryMaxInterval
		if cfg.TracingEnabled && d.tracer == nil {
			d.tracer = otel.Tracer(TracerName)
		}
	}
}

// WithConcurrency bounds how many matches run at once. Values below 1 are
// treated as 1.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.concurrency = n
	}
}

// WithRetry retries a failing handler up to maxRetries times with
// exponential backoff between attempts.
func WithRetry(maxRetries int, initial, maxInterval time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxRetries = maxRetries
		d.initialInterval = initial
		d.maxInterval = maxInterval
	}
}

// WithLogger sets the logger for invocation failures.
func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHooks merges hooks into the dispatcher's lifecycle callbacks.
func WithHooks(hooks JobHooks) Option {
	return func(d *Dispatcher) {
		d.hooks = d.hooks.Merge(hooks)
	}
}

// WithMetrics records invocation metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracer wraps every invocation in a span started from tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

// New builds a Dispatcher. Without options it runs matches sequentially and
// never retries.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{concurrency: 1}
	for _, opt := range opts {
		opt(d)
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}
	if d.maxRetries < 0 {
		d.maxRetries = 0
	}
	d.logger = loggingpkg.ForComponent(d.logger, "dispatch")
	return d
}

// Dispatch runs the handlers of every match. Failures do not stop other
// matches; they are returned together as *errors.HandlerError values joined
// in routing order. A cancelled context stops matches that have not started.
func (d *Dispatcher) Dispatch(ctx context.Context, matches []router.Match) error {
	results := make([]error, len(matches))

	if d.concurrency == 1 {
		for i, m := range matches {
			if err := ctx.Err(); err != nil {
				results[i] = err
				break
			}
			results[i] = d.runMatch(ctx, m)
		}
		return errors.Join(results...)
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, m := range matches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = err
				return nil
			}
			results[i] = d.runMatch(ctx, m)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(results...)
}

func (d *Dispatcher) runMatch(ctx context.Context, m router.Match) error {
	for i, handler := range m.Handlers {
		if err := d.invoke(ctx, m, i, handler); err != nil {
			return &errspkg.HandlerError{
				Group:   m.Group,
				Index:   i,
				EventID: m.Event.EventID,
				Err:     err,
			}
		}
	}
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, m router.Match, index int, handler router.Handler) error {
	jobCtx := JobContext{
		Group:        m.Group,
		HandlerIndex: index,
		InvocationID: ids.NewInvocationID(),
		EventID:      m.Event.EventID,
		Kind:         m.Event.Kind,
		StartedAt:    time.Now(),
	}

	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.Start(ctx, "streamroute.dispatch",
			trace.WithAttributes(
				attribute.String("streamroute.group", m.Group),
				attribute.Int("streamroute.handler_index", index),
				attribute.String("streamroute.event_id", m.Event.EventID),
				attribute.String("streamroute.event_kind", m.Event.Kind.String()),
				attribute.String("streamroute.invocation_id", jobCtx.InvocationID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
	}
	jobCtx.Context = ctx
	d.hooks.start(jobCtx)

	attempts, err := d.attempt(ctx, m, handler)

	jobCtx.Duration = time.Since(jobCtx.StartedAt)
	jobCtx.Attempts = attempts
	d.metrics.observe(m.Group, attempts, jobCtx.Duration, err)
	d.hooks.finish(jobCtx, err)

	if span != nil {
		span.SetAttributes(attribute.Int("streamroute.attempts", attempts))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}

	if err != nil {
		d.logger.Error("Handler invocation failed", err, loggingpkg.LogFields{
			"group":         m.Group,
			"handler_index": index,
			"event_id":      m.Event.EventID,
			"invocation_id": jobCtx.InvocationID,
			"attempts":      attempts,
		})
	}
	return err
}

// attempt runs handler once, or under backoff when retries are configured.
// A handler panic is converted into a permanent error.
func (d *Dispatcher) attempt(ctx context.Context, m router.Match, handler router.Handler) (int, error) {
	attempts := 0
	call := func() (struct{}, error) {
		attempts++
		return struct{}{}, safeCall(ctx, m, handler)
	}

	if d.maxRetries == 0 {
		_, err := call()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return attempts, err
	}

	policy := backoff.NewExponentialBackOff()
	if d.initialInterval > 0 {
		policy.InitialInterval = d.initialInterval
	}
	if d.maxInterval > 0 {
		policy.MaxInterval = d.maxInterval
	}
	_, err := backoff.Retry(ctx, call,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(d.maxRetries+1)),
	)
	return attempts, err
}

func safeCall(ctx context.Context, m router.Match, handler router.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = backoff.Permanent(fmt.Errorf("handler panicked: %v", r))
		}
	}()
	return handler(ctx, m.Event)
}
