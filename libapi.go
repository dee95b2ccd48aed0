package streamroute

import (
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/prometheus/client_golang/prometheus"

	runtimepkg "github.com/drblury/streamroute/internal/runtime"
	configpkg "github.com/drblury/streamroute/internal/runtime/config"
	"github.com/drblury/streamroute/internal/runtime/dispatch"
	errspkg "github.com/drblury/streamroute/internal/runtime/errors"
	idspkg "github.com/drblury/streamroute/internal/runtime/ids"
	jsoncodec "github.com/drblury/streamroute/internal/runtime/jsoncodec"
	lambdapkg "github.com/drblury/streamroute/internal/runtime/lambda"
	loggingpkg "github.com/drblury/streamroute/internal/runtime/logging"
	routerpkg "github.com/drblury/streamroute/internal/runtime/router"
	"github.com/drblury/streamroute/internal/runtime/rules"
	"github.com/drblury/streamroute/internal/runtime/stream"
	transportpkg "github.com/drblury/streamroute/internal/runtime/transport"
)

type (
	// Routing core
	Kind                  = stream.Kind
	Image                 = stream.Image
	Side                  = stream.Side
	Event                 = stream.Event
	TypedEvent[T any]     = stream.TypedEvent[T]
	Decoder               = stream.Decoder
	DecoderFunc           = stream.DecoderFunc
	DecodeError           = stream.DecodeError
	Normalizer            = stream.Normalizer
	NormalizerOption      = stream.Option
	Predicate             = routerpkg.Predicate
	Handler               = routerpkg.Handler
	HandlerGroup          = routerpkg.HandlerGroup
	Match                 = routerpkg.Match
	Router                = routerpkg.Router
	RouterOption          = routerpkg.Option
	RouteFunc             = routerpkg.RouteFunc
	RouterMetrics         = routerpkg.Metrics
	RecordError           = errspkg.RecordError
	HandlerError          = errspkg.HandlerError
	Record                = types.Record
	LambdaStreamEvent     = events.DynamoDBEvent
	LambdaStreamRecord    = events.DynamoDBEventRecord
	ConfigValidationError = errspkg.ConfigValidationError

	// Dispatch
	Dispatcher       = dispatch.Dispatcher
	DispatcherOption = dispatch.Option
	DispatchMetrics  = dispatch.Metrics
	JobContext       = dispatch.JobContext
	JobHooks         = dispatch.JobHooks

	// Watermill host
	Config                    = configpkg.Config
	Service                   = runtimepkg.Service
	ServiceDependencies       = runtimepkg.ServiceDependencies
	StreamHandlerRegistration = runtimepkg.StreamHandlerRegistration
	MiddlewareBuilder         = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration    = runtimepkg.MiddlewareRegistration
	HandlerInfo               = runtimepkg.HandlerInfo
	HandlerStats              = runtimepkg.HandlerStats
	HandlerSummary            = runtimepkg.HandlerSummary
	UnprocessableBatchError   = runtimepkg.UnprocessableBatchError
	ErrorClassifier           = runtimepkg.ErrorClassifier
	ErrorCategory             = runtimepkg.ErrorCategory
	Transport                 = transportpkg.Transport
	TransportFactory          = transportpkg.Factory
	TransportFactoryFunc      = transportpkg.FactoryFunc

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

const (
	KindInsert  = stream.KindInsert
	KindModify  = stream.KindModify
	KindRemove  = stream.KindRemove
	KindCreated = stream.KindCreated
	KindUpdated = stream.KindUpdated
	KindDeleted = stream.KindDeleted

	Before = stream.Before
	After  = stream.After
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone    = runtimepkg.ErrorCategoryNone
	ErrorCategoryPayload = runtimepkg.ErrorCategoryPayload
	ErrorCategoryDecode  = runtimepkg.ErrorCategoryDecode
	ErrorCategoryHandler = runtimepkg.ErrorCategoryHandler
	ErrorCategoryOther   = runtimepkg.ErrorCategoryOther
)

var (
	// Routing core
	NewRouter             = routerpkg.New
	WithDecoder           = routerpkg.WithDecoder
	WithLogger            = routerpkg.WithLogger
	WithMetrics           = routerpkg.WithMetrics
	Bind                  = routerpkg.Bind
	MatchesAll            = routerpkg.MatchesAll
	NewNormalizer         = stream.NewNormalizer
	WithNormalizerDecoder = stream.WithDecoder
	Normalize             = stream.Normalize
	AttributeValueDecoder = stream.AttributeValueDecoder

	// Rules
	OfKind       = rules.OfKind
	Inserted     = rules.Inserted
	Modified     = rules.Modified
	Removed      = rules.Removed
	HasField     = rules.HasField
	FieldEquals  = rules.FieldEquals
	FieldIn      = rules.FieldIn
	FieldChanged = rules.FieldChanged
	Not          = rules.Not
	AllOf        = rules.AllOf
	AnyOf        = rules.AnyOf

	// Lambda adapter
	ParseLambdaEvent = lambdapkg.ParseEvent
	FromLambdaEvent  = lambdapkg.FromEvent
	FromLambdaRecord = lambdapkg.FromRecord

	// Dispatch
	NewDispatcher       = dispatch.New
	WithDispatchConfig  = dispatch.WithConfig
	WithConcurrency     = dispatch.WithConcurrency
	WithRetry           = dispatch.WithRetry
	WithDispatchLogger  = dispatch.WithLogger
	WithHooks           = dispatch.WithHooks
	WithDispatchMetrics = dispatch.WithMetrics
	WithTracer          = dispatch.WithTracer
	LoggingHooks        = dispatch.LoggingHooks
	MetricsHooks        = dispatch.MetricsHooks

	// Watermill host
	NewService              = runtimepkg.NewService
	RegisterStreamHandler   = runtimepkg.RegisterStreamHandler
	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware
	DefaultTransportFactory = transportpkg.DefaultFactory

	LoadConfig     = configpkg.Load
	LoadConfigFrom = configpkg.LoadFrom
	ValidateConfig = configpkg.ValidateConfig

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrDecoderRequired      = errspkg.ErrDecoderRequired
	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrGroupsRequired       = errspkg.ErrGroupsRequired
	ErrConsumeQueueRequired = errspkg.ErrConsumeQueueRequired
	ErrHandlerNameRequired  = errspkg.ErrHandlerNameRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrEventPayloadRequired = errspkg.ErrEventPayloadRequired
	ErrEventRecordsMissing  = errspkg.ErrEventRecordsMissing

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewDiscardLogger     = loggingpkg.NewDiscardLogger

	NewInvocationID = idspkg.NewInvocationID
)

// NewRouterMetrics creates routing collectors under namespace.
func NewRouterMetrics(namespace string, registerer prometheus.Registerer) *RouterMetrics {
	return routerpkg.NewMetrics(namespace, registerer)
}

// NewDispatchMetrics creates handler invocation collectors under namespace.
func NewDispatchMetrics(namespace string, registerer prometheus.Registerer) *DispatchMetrics {
	return dispatch.NewMetrics(namespace, registerer)
}

// Typed returns a view of e with both images converted to T.
func Typed[T any](e Event) (TypedEvent[T], error) {
	return stream.Typed[T](e)
}

// ImageAs converts a single image to T.
func ImageAs[T any](img Image) (T, error) {
	return stream.ImageAs[T](img)
}

// TypedRule builds a predicate that converts the image on side to T and
// applies fn. Events whose image does not convert are rejected.
func TypedRule[T any](side Side, fn func(T) bool) Predicate {
	return rules.Typed(side, fn)
}
