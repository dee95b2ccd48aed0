package router

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
	loggingpkg "github.com/drblury/streamroute/internal/runtime/logging"
	"github.com/drblury/streamroute/internal/runtime/stream"
)

// Router computes which handler groups apply to which change records. It
// keeps no state between calls and is safe for concurrent use.
type Router struct {
	normalizer *stream.Normalizer
	logger     loggingpkg.ServiceLogger
	metrics    *Metrics
}

// Option configures a Router.
type Option func(*routerOptions)

type routerOptions struct {
	decoder stream.Decoder
	logger  loggingpkg.ServiceLogger
	metrics *Metrics
}

// WithDecoder swaps the attribute decoder used to normalize records.
func WithDecoder(decoder stream.Decoder) Option {
	return func(o *routerOptions) {
		o.decoder = decoder
	}
}

// WithLogger sets the logger used for per-call summaries and decode failures.
func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(o *routerOptions) {
		o.logger = logger
	}
}

// WithMetrics records routing counters on m.
func WithMetrics(m *Metrics) Option {
	return func(o *routerOptions) {
		o.metrics = m
	}
}

// New builds a Router.
func New(opts ...Option) (*Router, error) {
	o := routerOptions{decoder: stream.AttributeValueDecoder}
	for _, opt := range opts {
		opt(&o)
	}

	normalizer, err := stream.NewNormalizer(stream.WithDecoder(o.decoder))
	if err != nil {
		return nil, err
	}
	return &Router{
		normalizer: normalizer,
		logger:     loggingpkg.ForComponent(o.logger, "router"),
		metrics:    o.metrics,
	}, nil
}

// Route normalizes records and matches every resulting event against groups.
//
// The result holds one Match per (event, matching group), ordered by record
// then by group registration order. Normalization of the whole batch happens
// first, so a decode failure aborts the call before any predicate runs; the
// error is a *errors.RecordError wrapping a *stream.DecodeError.
//
// Predicates run on the caller's goroutine and are not recovered: a panicking
// predicate aborts the call and the panic reaches the caller unchanged.
func (r *Router) Route(groups []HandlerGroup, records []types.Record) ([]Match, error) {
	events := make([]stream.Event, 0, len(records))
	for i, record := range records {
		event, err := r.normalizer.Normalize(record)
		if err != nil {
			r.metrics.decodeFailed()
			r.logger.Error("Failed to normalize stream record", err, loggingpkg.LogFields{
				"record_index": i,
				"event_id":     aws.ToString(record.EventID),
			})
			return nil, &errspkg.RecordError{Index: i, Err: err}
		}
		events = append(events, event)
	}
	return r.RouteEvents(groups, events), nil
}

// RouteEvents matches already normalized events against groups.
func (r *Router) RouteEvents(groups []HandlerGroup, events []stream.Event) []Match {
	var matches []Match
	for _, event := range events {
		r.metrics.recordSeen(event.Kind)
		for _, group := range groups {
			if !MatchesAll(group.Rules, event) {
				continue
			}
			r.metrics.groupMatched(group.Name)
			matches = append(matches, Match{
				Event:    event,
				Group:    group.Name,
				Handlers: group.Handlers,
			})
		}
	}

	r.logger.Debug("Routed stream batch", loggingpkg.LogFields{
		"events":  len(events),
		"groups":  len(groups),
		"matches": len(matches),
	})
	if matches == nil {
		return []Match{}
	}
	return matches
}

// RouteFunc is the curried form of Route with its groups bound.
type RouteFunc func(records []types.Record) ([]Match, error)

// Bind fixes groups on r so callers can route batches with a single argument.
func Bind(r *Router, groups ...HandlerGroup) RouteFunc {
	return func(records []types.Record) ([]Match, error) {
		return r.Route(groups, records)
	}
}
