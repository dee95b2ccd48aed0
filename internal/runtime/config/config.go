package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config groups the settings used by the dispatcher and the Watermill host.
// The routing core itself takes no configuration.
type Config struct {
	// ServiceName labels logs, spans and metrics.
	ServiceName string `env:"SERVICE_NAME" envDefault:"streamroute"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// DispatchConcurrency bounds how many matches run at once. 1 keeps
	// matches strictly sequential in routing order; 0 means 1.
	DispatchConcurrency int `env:"DISPATCH_CONCURRENCY" envDefault:"1"`

	// Retry tuning for handler invocations. Zero retries disables retrying.
	RetryMaxRetries      int           `env:"RETRY_MAX_RETRIES" envDefault:"0"`
	RetryInitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"100ms"`
	RetryMaxInterval     time.Duration `env:"RETRY_MAX_INTERVAL" envDefault:"5s"`

	// Metrics configuration.
	MetricsEnabled   bool   `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"streamroute"`
	// MetricsPort exposes /metrics when greater than zero.
	MetricsPort int `env:"METRICS_PORT" envDefault:"0"`

	// WebUI exposes /api/handlers with per-handler statistics.
	WebUIEnabled            bool     `env:"WEBUI_ENABLED" envDefault:"false"`
	WebUIPort               int      `env:"WEBUI_PORT" envDefault:"8081"`
	WebUICORSAllowedOrigins []string `env:"WEBUI_CORS_ALLOWED_ORIGINS" envSeparator:","`

	// TracingEnabled wraps each handler invocation in an OpenTelemetry span.
	TracingEnabled bool `env:"TRACING_ENABLED" envDefault:"false"`

	// PubSubSystem selects the transport of the Watermill host: "channel"
	// (in-memory) or "sqs".
	PubSubSystem string `env:"PUBSUB_SYSTEM" envDefault:"channel"`

	// AWS settings for the sqs transport. AWSEndpoint optionally points to a
	// custom endpoint such as LocalStack.
	AWSRegion          string `env:"AWS_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSEndpoint        string `env:"AWS_ENDPOINT"`

	// ConsumeQueue is the topic the Watermill host reads stream batches from.
	ConsumeQueue string `env:"CONSUME_QUEUE" envDefault:"dynamodb.stream"`

	// PoisonQueue receives batches that fail routing or dispatch. Empty
	// disables poison queue forwarding.
	PoisonQueue string `env:"POISON_QUEUE"`
}

// EnvPrefix is prepended to every variable read by Load.
const EnvPrefix = "STREAMROUTE_"

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix})
}

// LoadFrom reads the configuration from the supplied variables instead of the
// process environment. Keys carry the STREAMROUTE_ prefix.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c Config) String() string {
	redacted := c
	if redacted.AWSSecretAccessKey != "" {
		redacted.AWSSecretAccessKey = "***REDACTED***"
	}
	if redacted.AWSAccessKeyID != "" {
		redacted.AWSAccessKeyID = "***REDACTED***"
	}
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(redacted))
}

// SlogLevel maps LogLevel onto slog. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validateDispatch()...)
	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validateLogging()...)

	return errors.Join(errs...)
}

func (c *Config) validateTransport() []error {
	switch strings.ToLower(c.PubSubSystem) {
	case "", "channel", "gochannel":
		return nil
	case "sqs":
		if c.AWSRegion == "" {
			return []error{errors.New("sqs: region is required")}
		}
		return nil
	}
	return []error{fmt.Errorf("transport: unsupported pubsub system %q", c.PubSubSystem)}
}

func (c *Config) validateDispatch() []error {
	var errs []error
	if c.DispatchConcurrency < 0 {
		errs = append(errs, fmt.Errorf("dispatch: concurrency cannot be negative, got %d", c.DispatchConcurrency))
	}
	if c.MetricsEnabled && c.MetricsNamespace == "" {
		errs = append(errs, errors.New("metrics: namespace is required when metrics are enabled"))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	if c.WebUIPort < 0 || c.WebUIPort > 65535 {
		errs = append(errs, fmt.Errorf("webui: invalid port %d", c.WebUIPort))
	}
	return errs
}

func (c *Config) validateRetry() []error {
	var errs []error
	if c.RetryMaxRetries < 0 {
		errs = append(errs, errors.New("retry: max retries cannot be negative"))
	}
	if c.RetryInitialInterval < 0 {
		errs = append(errs, errors.New("retry: initial interval cannot be negative"))
	}
	if c.RetryMaxInterval < 0 {
		errs = append(errs, errors.New("retry: max interval cannot be negative"))
	}
	if c.RetryMaxInterval > 0 && c.RetryInitialInterval > c.RetryMaxInterval {
		errs = append(errs, errors.New("retry: initial interval cannot exceed max interval"))
	}
	return errs
}

func (c *Config) validateLogging() []error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return []error{fmt.Errorf("logging: unknown level %q", c.LogLevel)}
}

// ValidateConfig is a convenience function to validate a config pointer.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
