package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/streamroute/internal/runtime/config"
	"github.com/drblury/streamroute/internal/runtime/dispatch"
	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
	loggingpkg "github.com/drblury/streamroute/internal/runtime/logging"
	routerpkg "github.com/drblury/streamroute/internal/runtime/router"
	"github.com/drblury/streamroute/internal/runtime/stream"
	transportpkg "github.com/drblury/streamroute/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	TransportFactory          transportpkg.Factory
	Decoder                   stream.Decoder           // Replaces the attribute value decoder.
	Hooks                     dispatch.JobHooks        // Invocation lifecycle callbacks.
	Registerer                prometheus.Registerer    // Defaults to prometheus.DefaultRegisterer.
	Tracer                    trace.Tracer             // Overrides the tracer picked by TracingEnabled.
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	ErrorClassifier           ErrorClassifier
}

// Service wires a Watermill router to the stream router and dispatcher, so
// stream batches arriving on a queue are normalized, matched and handled.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	streamRouter *routerpkg.Router
	dispatcher   *dispatch.Dispatcher
	registerer   prometheus.Registerer

	handlers   []*HandlerInfo
	handlersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	errorClassifier ErrorClassifier
}

// NewService constructs a Service for the supplied configuration. Register
// stream handlers on the returned Service before calling Start.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating stream service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		registerer:      deps.Registerer,
		errorClassifier: deps.ErrorClassifier,
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}
	if s.errorClassifier == nil {
		s.errorClassifier = defaultErrorClassifier
	}

	if err := s.buildPipeline(deps); err != nil {
		return nil, err
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	s.publisher = transport.Publisher
	s.subscriber = transport.Subscriber

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	if conf.MetricsEnabled && conf.MetricsPort > 0 {
		s.RegisterHTTPHandler(conf.MetricsPort, "/metrics", s.metricsHandler())
	}

	return s, nil
}

// buildPipeline creates the stream router and the dispatcher, with metrics
// when enabled.
func (s *Service) buildPipeline(deps ServiceDependencies) error {
	var routerMetrics *routerpkg.Metrics
	var dispatchMetrics *dispatch.Metrics
	if s.Conf.MetricsEnabled {
		routerMetrics = routerpkg.NewMetrics(s.Conf.MetricsNamespace, s.registerer)
		if err := routerMetrics.Register(); err != nil {
			return fmt.Errorf("register router metrics: %w", err)
		}
		dispatchMetrics = dispatch.NewMetrics(s.Conf.MetricsNamespace, s.registerer)
		if err := dispatchMetrics.Register(); err != nil {
			return fmt.Errorf("register dispatch metrics: %w", err)
		}
	}

	routerOpts := []routerpkg.Option{
		routerpkg.WithLogger(s.Logger),
		routerpkg.WithMetrics(routerMetrics),
	}
	if deps.Decoder != nil {
		routerOpts = append(routerOpts, routerpkg.WithDecoder(deps.Decoder))
	}
	streamRouter, err := routerpkg.New(routerOpts...)
	if err != nil {
		return err
	}
	s.streamRouter = streamRouter

	dispatchOpts := []dispatch.Option{
		dispatch.WithConfig(s.Conf),
		dispatch.WithLogger(s.Logger),
		dispatch.WithHooks(deps.Hooks),
		dispatch.WithMetrics(dispatchMetrics),
	}
	if deps.Tracer != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithTracer(deps.Tracer))
	}
	s.dispatcher = dispatch.New(dispatchOpts...)
	return nil
}

// Start runs the underlying Watermill router until the provided context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.StartWebUIServer()
	s.startHTTPServers()
	return routerRun(s.router, ctx)
}

// Running is closed once the router has started all handlers.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close stops the router and its handlers.
func (s *Service) Close() error {
	return s.router.Close()
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) metricsHandler() http.Handler {
	if gatherer, ok := s.registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// RegisterHTTPHandler mounts handler on pattern for the server listening on
// port. Servers start with the Service.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
