// Package streamroute turns DynamoDB change-stream records into normalized
// events and decides which handler groups apply to each of them.
//
// A HandlerGroup pairs an ordered list of predicates with an ordered list of
// handlers. Router.Route normalizes a batch of records (decoding the typed
// attribute maps of the new and old images into plain values), evaluates
// every group against every event and returns one Match per (event, group)
// where all predicates held. A group without predicates never matches.
// Routing is pure: handlers are passed through, never invoked.
//
// # Running handlers
//
// Dispatcher executes the matches: handlers of one match run in declared
// order, matches run sequentially or with bounded concurrency, failures are
// retried with exponential backoff and reported as HandlerError values. Job
// hooks, Prometheus metrics and OpenTelemetry spans are optional.
//
// # Hosting
//
// Service hosts the router on Watermill. It consumes Lambda formatted stream
// events from a queue (in-memory Go channels or SQS), routes and dispatches
// every batch, and forwards failed batches to an optional poison queue.
// Inside a Lambda function, Service.HandleBatch or ParseLambdaEvent plus
// Router.Route do the same work without a broker.
//
// # Rules
//
// Inserted, Modified, Removed, HasField, FieldEquals, FieldChanged and the
// AllOf, AnyOf and Not combinators cover common predicates; TypedRule applies
// a predicate to an image converted into a caller defined struct.
package streamroute
