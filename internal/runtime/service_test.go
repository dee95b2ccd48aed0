package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/streamroute/internal/runtime/config"
	"github.com/drblury/streamroute/internal/runtime/dispatch"
	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
	loggingpkg "github.com/drblury/streamroute/internal/runtime/logging"
	routerpkg "github.com/drblury/streamroute/internal/runtime/router"
	"github.com/drblury/streamroute/internal/runtime/rules"
	"github.com/drblury/streamroute/internal/runtime/stream"
	transportpkg "github.com/drblury/streamroute/internal/runtime/transport"
)

const cartCreatedBatch = `{
  "Records": [
    {
      "eventID": "687541e3494dc8de9ff8d1f64b69bba1",
      "eventName": "INSERT",
      "dynamodb": {
        "Keys": {"cartId": {"S": "d20c2a9f"}},
        "NewImage": {
          "cartId": {"S": "d20c2a9f"},
          "status": {"S": "open"},
          "items": {"N": "2"}
        },
        "SequenceNumber": "4217800000000000074376631"
      }
    },
    {
      "eventID": "2",
      "eventName": "REMOVE",
      "dynamodb": {
        "Keys": {"cartId": {"S": "44abc7c8"}},
        "OldImage": {"cartId": {"S": "44abc7c8"}}
      }
    }
  ]
}`

func testConfig() *configpkg.Config {
	return &configpkg.Config{
		ServiceName:         "carts",
		LogLevel:            "debug",
		DispatchConcurrency: 1,
		PubSubSystem:        "channel",
		ConsumeQueue:        "dynamodb.stream",
		MetricsNamespace:    "test",
	}
}

func newTestService(t *testing.T, conf *configpkg.Config, deps ServiceDependencies) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), conf, loggingpkg.NewDiscardLogger(), deps)
	require.NoError(t, err)
	return svc
}

type eventRecorder struct {
	mu     sync.Mutex
	events []stream.Event
	seen   chan struct{}
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{seen: make(chan struct{}, 16)}
}

func (r *eventRecorder) handle(_ context.Context, e stream.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *eventRecorder) snapshot() []stream.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stream.Event(nil), r.events...)
}

func insertedCarts(handlers ...routerpkg.Handler) routerpkg.HandlerGroup {
	return routerpkg.HandlerGroup{
		Name:     "inserted-carts",
		Rules:    []routerpkg.Predicate{rules.Inserted(), rules.HasField(stream.After, "cartId")},
		Handlers: handlers,
	}
}

func runService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})

	select {
	case <-svc.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("service did not start")
	}
}

func TestNewServiceValidatesInputs(t *testing.T) {
	logger := loggingpkg.NewDiscardLogger()

	_, err := NewService(context.Background(), nil, logger, ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = NewService(context.Background(), testConfig(), nil, ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)

	bad := testConfig()
	bad.DispatchConcurrency = -1
	_, err = NewService(context.Background(), bad, logger, ServiceDependencies{})
	var cfgErr errspkg.ConfigValidationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewServiceAcceptsZeroValueSettings(t *testing.T) {
	svc, err := NewService(context.Background(), &configpkg.Config{PubSubSystem: "channel"}, loggingpkg.NewDiscardLogger(), ServiceDependencies{})
	require.NoError(t, err)

	recorder := newEventRecorder()
	require.NoError(t, svc.HandleBatch(context.Background(), []byte(cartCreatedBatch), []routerpkg.HandlerGroup{insertedCarts(recorder.handle)}))
	assert.Len(t, recorder.snapshot(), 1)
}

func TestNewServiceUsesTransportFactory(t *testing.T) {
	pub := &testPublisher{}
	factory := transportpkg.FactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{Publisher: pub, Subscriber: &testSubscriber{}}, nil
	})

	svc := newTestService(t, testConfig(), ServiceDependencies{TransportFactory: factory})
	assert.Same(t, pub, svc.publisher)

	failing := transportpkg.FactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, errors.New("broker down")
	})
	_, err := NewService(context.Background(), testConfig(), loggingpkg.NewDiscardLogger(), ServiceDependencies{TransportFactory: failing})
	assert.ErrorContains(t, err, "build transport: broker down")
}

func TestServiceRoutesConsumedBatches(t *testing.T) {
	svc := newTestService(t, testConfig(), ServiceDependencies{})
	recorder := newEventRecorder()

	require.NoError(t, RegisterStreamHandler(svc, StreamHandlerRegistration{
		Name:   "carts",
		Groups: []routerpkg.HandlerGroup{insertedCarts(recorder.handle)},
	}))
	runService(t, svc)

	require.NoError(t, svc.PublishBatch(context.Background(), "", []byte(cartCreatedBatch)))

	select {
	case <-recorder.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked")
	}

	events := recorder.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, stream.KindInsert, events[0].Kind)
	assert.Equal(t, "open", events[0].After["status"])
	assert.Equal(t, float64(2), events[0].After["items"])

	require.Eventually(t, func() bool {
		return svc.Handlers()[0].Stats.BatchesProcessed == 1
	}, 5*time.Second, 10*time.Millisecond)
	stats := svc.Handlers()[0].Stats
	assert.Equal(t, uint64(2), stats.RecordsRouted)
	assert.Equal(t, uint64(1), stats.MatchesDispatched)
	assert.Zero(t, stats.BatchesFailed)
}

func TestServiceSendsFailedBatchesToPoisonQueue(t *testing.T) {
	conf := testConfig()
	conf.PoisonQueue = "dynamodb.stream.poison"
	svc := newTestService(t, conf, ServiceDependencies{})

	failing := func(context.Context, stream.Event) error { return errors.New("inventory unavailable") }
	require.NoError(t, RegisterStreamHandler(svc, StreamHandlerRegistration{
		Name:   "carts",
		Groups: []routerpkg.HandlerGroup{insertedCarts(failing)},
	}))

	poisoned, err := svc.subscriber.Subscribe(context.Background(), conf.PoisonQueue)
	require.NoError(t, err)
	runService(t, svc)

	require.NoError(t, svc.PublishBatch(context.Background(), "", []byte(cartCreatedBatch)))

	select {
	case msg := <-poisoned:
		msg.Ack()
		assert.JSONEq(t, cartCreatedBatch, string(msg.Payload))
		assert.Contains(t, msg.Metadata.Get(middleware.ReasonForPoisonedKey), "inventory unavailable")
		assert.NotEmpty(t, middleware.MessageCorrelationID(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("batch was not poisoned")
	}

	require.Eventually(t, func() bool {
		return svc.Handlers()[0].Stats.Errors.Handler == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServicePoisonsBatchesWithoutRecords(t *testing.T) {
	conf := testConfig()
	conf.PoisonQueue = "dynamodb.stream.poison"
	svc := newTestService(t, conf, ServiceDependencies{})
	recorder := newEventRecorder()

	require.NoError(t, RegisterStreamHandler(svc, StreamHandlerRegistration{
		Name:   "carts",
		Groups: []routerpkg.HandlerGroup{insertedCarts(recorder.handle)},
	}))

	poisoned, err := svc.subscriber.Subscribe(context.Background(), conf.PoisonQueue)
	require.NoError(t, err)
	runService(t, svc)

	require.NoError(t, svc.PublishBatch(context.Background(), "", []byte(`{}`)))

	select {
	case msg := <-poisoned:
		msg.Ack()
		assert.Equal(t, `{}`, string(msg.Payload))
		assert.Contains(t, msg.Metadata.Get(middleware.ReasonForPoisonedKey), "carries no stream records")
	case <-time.After(5 * time.Second):
		t.Fatal("batch was not poisoned")
	}

	require.Eventually(t, func() bool {
		stats := svc.Handlers()[0].Stats
		return stats.Errors.Payload == 1 && stats.BatchesFailed == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, recorder.snapshot())
}

func TestHandleBatchSingleRecord(t *testing.T) {
	svc := newTestService(t, testConfig(), ServiceDependencies{})
	recorder := newEventRecorder()

	record := `{
  "eventID": "687541e3494dc8de9ff8d1f64b69bba1",
  "eventName": "INSERT",
  "dynamodb": {
    "Keys": {"cartId": {"S": "d20c2a9f"}},
    "NewImage": {"cartId": {"S": "d20c2a9f"}, "status": {"S": "open"}}
  }
}`
	require.NoError(t, svc.HandleBatch(context.Background(), []byte(record), []routerpkg.HandlerGroup{insertedCarts(recorder.handle)}))

	events := recorder.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "d20c2a9f", events[0].After["cartId"])
}

func TestHandleBatch(t *testing.T) {
	svc := newTestService(t, testConfig(), ServiceDependencies{})
	recorder := newEventRecorder()

	groups := []routerpkg.HandlerGroup{
		insertedCarts(recorder.handle),
		{
			Name:     "removed-carts",
			Rules:    []routerpkg.Predicate{rules.Removed()},
			Handlers: []routerpkg.Handler{recorder.handle},
		},
	}
	require.NoError(t, svc.HandleBatch(context.Background(), []byte(cartCreatedBatch), groups))

	events := recorder.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, stream.KindInsert, events[0].Kind)
	assert.Equal(t, stream.KindRemove, events[1].Kind)
	assert.Equal(t, stream.Image{"cartId": "44abc7c8"}, events[1].Before)
}

func TestHandleBatchErrors(t *testing.T) {
	svc := newTestService(t, testConfig(), ServiceDependencies{})

	err := svc.HandleBatch(context.Background(), []byte("not json"), nil)
	var unprocessable *UnprocessableBatchError
	require.ErrorAs(t, err, &unprocessable)
	assert.Equal(t, ErrorCategoryPayload, defaultErrorClassifier(err))

	failing := func(context.Context, stream.Event) error { return errors.New("boom") }
	err = svc.HandleBatch(context.Background(), []byte(cartCreatedBatch), []routerpkg.HandlerGroup{insertedCarts(failing)})
	var handlerErr *errspkg.HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, "inserted-carts", handlerErr.Group)
	assert.Equal(t, "687541e3494dc8de9ff8d1f64b69bba1", handlerErr.EventID)
	assert.Equal(t, ErrorCategoryHandler, defaultErrorClassifier(err))
}

func TestHandleRecordsDecodeFailure(t *testing.T) {
	decodeErr := errors.New("unsupported attribute")
	decoder := stream.DecoderFunc(func(map[string]types.AttributeValue) (stream.Image, error) {
		return nil, decodeErr
	})
	svc := newTestService(t, testConfig(), ServiceDependencies{Decoder: decoder})

	err := svc.HandleRecords(context.Background(), []types.Record{{
		EventName: types.OperationTypeInsert,
		Dynamodb: &types.StreamRecord{
			NewImage: map[string]types.AttributeValue{"cartId": &types.AttributeValueMemberS{Value: "x"}},
		},
	}}, []routerpkg.HandlerGroup{insertedCarts(newEventRecorder().handle)})

	assert.ErrorIs(t, err, decodeErr)
	assert.Equal(t, ErrorCategoryDecode, defaultErrorClassifier(err))
}

func TestServiceHooksAndMetrics(t *testing.T) {
	conf := testConfig()
	conf.MetricsEnabled = true
	registry := prometheus.NewRegistry()

	var done []dispatch.JobContext
	svc := newTestService(t, conf, ServiceDependencies{
		Registerer: registry,
		Hooks: dispatch.JobHooks{
			OnJobDone: func(ctx dispatch.JobContext) { done = append(done, ctx) },
		},
	})

	require.NoError(t, svc.HandleBatch(context.Background(), []byte(cartCreatedBatch),
		[]routerpkg.HandlerGroup{insertedCarts(newEventRecorder().handle)}))

	require.Len(t, done, 1)
	assert.Equal(t, "inserted-carts", done[0].Group)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["test_router_records_total"])
	assert.True(t, names["test_router_matches_total"])
	assert.True(t, names["test_dispatch_invocations_total"])
}

func TestRegisterStreamHandlerValidation(t *testing.T) {
	assert.ErrorIs(t, RegisterStreamHandler(nil, StreamHandlerRegistration{}), errspkg.ErrServiceRequired)

	svc := newTestService(t, testConfig(), ServiceDependencies{})
	groups := []routerpkg.HandlerGroup{insertedCarts()}

	assert.ErrorIs(t, RegisterStreamHandler(svc, StreamHandlerRegistration{Groups: groups}), errspkg.ErrHandlerNameRequired)
	assert.ErrorIs(t, RegisterStreamHandler(svc, StreamHandlerRegistration{Name: "carts"}), errspkg.ErrGroupsRequired)

	require.NoError(t, RegisterStreamHandler(svc, StreamHandlerRegistration{Name: "carts", Groups: groups}))
	assert.ErrorContains(t, RegisterStreamHandler(svc, StreamHandlerRegistration{Name: "carts", Groups: groups}), "already registered")

	handlers := svc.Handlers()
	require.Len(t, handlers, 1)
	assert.Equal(t, "dynamodb.stream", handlers[0].ConsumeQueue)
	assert.Equal(t, []string{"inserted-carts"}, handlers[0].Groups)

	noQueue := testConfig()
	noQueue.ConsumeQueue = ""
	bare := newTestService(t, noQueue, ServiceDependencies{})
	assert.ErrorIs(t, RegisterStreamHandler(bare, StreamHandlerRegistration{Name: "carts", Groups: groups}), errspkg.ErrConsumeQueueRequired)
}

func TestPublishBatchValidation(t *testing.T) {
	svc := newTestService(t, testConfig(), ServiceDependencies{})
	assert.ErrorIs(t, svc.PublishBatch(context.Background(), "", nil), errspkg.ErrEventPayloadRequired)

	var nilSvc *Service
	assert.Error(t, nilSvc.PublishBatch(context.Background(), "", []byte("{}")))
}

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen string
	h := correlationIDMiddleware(func(msg *message.Message) ([]*message.Message, error) {
		seen = middleware.MessageCorrelationID(msg)
		return []*message.Message{message.NewMessage("out", nil)}, nil
	})

	out, err := h(message.NewMessage("in", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, middleware.MessageCorrelationID(out[0]))

	existing := message.NewMessage("in", nil)
	middleware.SetCorrelationID("fixed", existing)
	_, err = h(existing)
	require.NoError(t, err)
	assert.Equal(t, "fixed", seen)
}

func TestRegisterMiddlewareErrors(t *testing.T) {
	svc := newTestService(t, testConfig(), ServiceDependencies{})
	assert.ErrorContains(t, svc.RegisterMiddleware(MiddlewareRegistration{Name: "empty"}), "requires Middleware or Builder")

	failing := MiddlewareRegistration{
		Name: "failing",
		Builder: func(*Service) (message.HandlerMiddleware, error) {
			return nil, errors.New("cannot build")
		},
	}
	_, err := NewService(context.Background(), testConfig(), loggingpkg.NewDiscardLogger(), ServiceDependencies{
		Middlewares: []MiddlewareRegistration{failing},
	})
	assert.ErrorContains(t, err, "failed to register middleware failing: cannot build")

	assert.Error(t, (&Service{}).RegisterMiddleware(RecovererMiddleware()))
}

func TestWebUIHandlers(t *testing.T) {
	conf := testConfig()
	conf.WebUICORSAllowedOrigins = []string{"http://dash.test"}
	svc := newTestService(t, conf, ServiceDependencies{})
	require.NoError(t, RegisterStreamHandler(svc, StreamHandlerRegistration{
		Name:   "carts",
		Groups: []routerpkg.HandlerGroup{insertedCarts()},
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/handlers", nil)
	req.Header.Set("Origin", "http://dash.test")
	rec := httptest.NewRecorder()
	svc.handleGetHandlers(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://dash.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Body.String(), `"name":"carts"`))
	assert.True(t, strings.Contains(rec.Body.String(), `"groups":["inserted-carts"]`))

	preflight := httptest.NewRecorder()
	svc.handleGetHandlers(preflight, httptest.NewRequest(http.MethodOptions, "/api/handlers", nil))
	assert.Equal(t, http.StatusNoContent, preflight.Code)

	assert.Empty(t, svc.getAllowedCORSOrigin("http://evil.test"))
}

func TestWebUIServesSingleHandler(t *testing.T) {
	svc := newTestService(t, testConfig(), ServiceDependencies{})
	require.NoError(t, RegisterStreamHandler(svc, StreamHandlerRegistration{
		Name:   "carts",
		Groups: []routerpkg.HandlerGroup{insertedCarts()},
	}))
	mux := svc.webUIMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/handlers/carts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"consume_queue":"dynamodb.stream"`)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	missing := httptest.NewRecorder()
	mux.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/handlers/orders", nil))
	assert.Equal(t, http.StatusNotFound, missing.Code)

	rejected := httptest.NewRecorder()
	mux.ServeHTTP(rejected, httptest.NewRequest(http.MethodPost, "/api/handlers", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rejected.Code)
}
