/*
Package runtime hosts the stream router on top of Watermill.

# Architecture Overview

A Service consumes DynamoDB stream events (in the Lambda JSON format) from a
queue, normalizes every record, matches the resulting events against handler
groups and dispatches the matches. The routing core lives in the router and
stream packages and knows nothing about Watermill; this package only wires it
to a transport.

# Package Structure

## Core Service (service.go)

The Service struct wires together:
  - Message router (Watermill) and its middleware chain
  - Publisher and subscriber from the transport factory
  - The stream router and the dispatcher
  - HTTP servers for metrics and the handler API

## Handler Registration (registration.go)

RegisterStreamHandler binds handler groups to a consume queue. HandleBatch and
HandleRecords run the same path without Watermill, which is how a Lambda
function handler uses the Service.

## Middleware (middleware.go)

The default chain, outermost first:
  - CorrelationID: assigns and propagates correlation IDs
  - LogMessages: debug log per consumed batch
  - Tracer: OpenTelemetry span per batch (when tracing is enabled)
  - Metrics: Watermill Prometheus router metrics (when metrics are enabled)
  - PoisonQueue: forwards failed batches (when a poison queue is configured)
  - Recoverer: turns panics into errors

Handler retries are not part of the chain; the dispatcher retries each
handler individually.

# Subpackages

  - config: environment configuration
  - dispatch: handler execution with retries, hooks, metrics and spans
  - errors: sentinel and structured errors
  - ids: invocation identifiers
  - jsoncodec: JSON helpers backed by sonic
  - lambda: Lambda stream payload adapter
  - logging: logger abstraction over slog and Watermill
  - router: predicate based routing of change events
  - rules: ready made predicates
  - stream: record normalization
  - transport: gochannel and SQS transports
*/
package runtime
