package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/order-payment-service/internal/allowlist"
	"github.com/example/order-payment-service/internal/submission"
	"github.com/example/order-payment-service/internal/util"
)

// Payments backends.
const (
	BackendHTTP = "http"
	BackendMock = "mock"
)

// Config captures all runtime configuration for the order payment service.
type Config struct {
	App      AppConfig
	Payments PaymentsConfig
	Submit   SubmitConfig
	Senders  SenderConfig
	Kafka    KafkaConfig
	Topics   TopicConfig
	Worker   WorkerConfig
	Health   HealthConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// PaymentsConfig locates and authenticates against the payments API.
type PaymentsConfig struct {
	Backend        string
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

// SubmitConfig controls the submission retry schedule.
type SubmitConfig struct {
	MaxRetries    int
	BaseBackoffMs int
}

// SenderConfig holds the sender allow-list. Allowed merges ALLOWED_SENDERS
// with the entries of ALLOWED_SENDERS_FILE, normalized and de-duplicated.
type SenderConfig struct {
	Allowed []string
	File    string
}

// KafkaConfig defines broker information.
type KafkaConfig struct {
	Brokers []string
}

// TopicConfig names the inbound, status and DLQ topics.
type TopicConfig struct {
	Inbound string
	Status  string
	DLQ     string
}

// WorkerConfig tunes the Kafka worker.
type WorkerConfig struct {
	ConsumerGroup       string
	Concurrency         int
	MsgMaxBytes         int
	CommitOnSuccessOnly bool
}

// HealthConfig toggles the /healthz and /metrics server.
type HealthConfig struct {
	Enabled bool
}

// LoadOption adjusts how Load resolves settings.
type LoadOption func(*loadOptions)

type loadOptions struct {
	backend string
}

// WithPaymentsBackend forces the payments backend, ignoring
// PAYMENT_API_BACKEND. Credentials are only required for the http backend.
func WithPaymentsBackend(backend string) LoadOption {
	return func(o *loadOptions) {
		o.backend = strings.TrimSpace(backend)
	}
}

// Load reads environment variables (and .env when present), applies
// defaults, validates values and returns a populated Config. Kafka settings
// are read but only checked by RequireKafka.
func Load(opts ...LoadOption) (*Config, error) {
	_ = godotenv.Load()

	var lo loadOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&lo)
		}
	}

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Payments.Backend = strings.ToLower(ldr.getString("PAYMENT_API_BACKEND", BackendHTTP, false))
	if lo.backend != "" {
		cfg.Payments.Backend = strings.ToLower(lo.backend)
	}
	switch cfg.Payments.Backend {
	case BackendHTTP, BackendMock:
	default:
		ldr.addError(fmt.Sprintf("PAYMENT_API_BACKEND must be one of %s, %s", BackendHTTP, BackendMock))
	}
	requireAPI := cfg.Payments.Backend == BackendHTTP
	cfg.Payments.BaseURL = ldr.getString("PAYMENT_API_BASE_URL", "", requireAPI)
	if cfg.Payments.BaseURL != "" {
		base, err := util.ValidateHTTPURL(cfg.Payments.BaseURL)
		if err != nil {
			ldr.addError(fmt.Sprintf("PAYMENT_API_BASE_URL: %v", err))
		} else {
			cfg.Payments.BaseURL = base
		}
	}
	cfg.Payments.Token = ldr.getString("PAYMENT_API_TOKEN", "", requireAPI)
	cfg.Payments.TimeoutSeconds = ldr.getInt("PAYMENT_API_TIMEOUT_SECONDS", 30, false)
	ldr.requireMin("PAYMENT_API_TIMEOUT_SECONDS", cfg.Payments.TimeoutSeconds, 1)

	cfg.Submit.MaxRetries = ldr.getInt("SUBMIT_MAX_RETRIES", 3, false)
	ldr.requireMin("SUBMIT_MAX_RETRIES", cfg.Submit.MaxRetries, 0)
	ldr.requireMax("SUBMIT_MAX_RETRIES", cfg.Submit.MaxRetries, submission.MaxRetriesLimit)
	cfg.Submit.BaseBackoffMs = ldr.getInt("SUBMIT_BASE_BACKOFF_MS", 1000, false)
	ldr.requireMin("SUBMIT_BASE_BACKOFF_MS", cfg.Submit.BaseBackoffMs, 0)

	senders := ldr.getStringSlice("ALLOWED_SENDERS", false)
	cfg.Senders.File = ldr.getString("ALLOWED_SENDERS_FILE", "", false)
	if cfg.Senders.File != "" {
		fromFile, err := allowlist.LoadFile(cfg.Senders.File)
		if err != nil {
			ldr.addError(fmt.Sprintf("ALLOWED_SENDERS_FILE: %v", err))
		}
		senders = append(senders, fromFile...)
	}
	allowed, err := util.NormalizeAddresses(senders)
	if err != nil {
		ldr.addError(fmt.Sprintf("allowed senders: %v", err))
	}
	cfg.Senders.Allowed = allowed

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Topics.Inbound = ldr.getString("KAFKA_INBOUND_TOPIC", "", false)
	cfg.Topics.Status = ldr.getString("KAFKA_STATUS_TOPIC", "", false)
	cfg.Topics.DLQ = ldr.getString("KAFKA_DLQ_TOPIC", "", false)

	cfg.Worker.ConsumerGroup = ldr.getString("INBOUND_CONSUMER_GROUP", "", false)
	cfg.Worker.Concurrency = ldr.getInt("WORKER_CONCURRENCY", 10, false)
	ldr.requireMin("WORKER_CONCURRENCY", cfg.Worker.Concurrency, 1)
	cfg.Worker.MsgMaxBytes = ldr.getInt("MSG_MAX_BYTES", 1048576, false)
	ldr.requireMin("MSG_MAX_BYTES", cfg.Worker.MsgMaxBytes, 0)
	cfg.Worker.CommitOnSuccessOnly = ldr.getBool("COMMIT_ON_SUCCESS_ONLY", true, false)

	cfg.Health.Enabled = ldr.getBool("HEALTH_ENABLED", true, false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireKafka reports every missing Kafka setting the worker needs.
func (c *Config) RequireKafka() error {
	var errs []string
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "KAFKA_BROKERS is required")
	}
	if c.Topics.Inbound == "" {
		errs = append(errs, "KAFKA_INBOUND_TOPIC is required")
	}
	if c.Topics.Status == "" {
		errs = append(errs, "KAFKA_STATUS_TOPIC is required")
	}
	if c.Topics.DLQ == "" {
		errs = append(errs, "KAFKA_DLQ_TOPIC is required")
	}
	if c.Worker.ConsumerGroup == "" {
		errs = append(errs, "INBOUND_CONSUMER_GROUP is required")
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.New("config validation failed: " + strings.Join(errs, "; "))
}

// PaymentsTimeout returns the per-request timeout.
func (c *Config) PaymentsTimeout() time.Duration {
	return time.Duration(c.Payments.TimeoutSeconds) * time.Second
}

// SubmitBaseDelay returns the first backoff delay.
func (c *Config) SubmitBaseDelay() time.Duration {
	return time.Duration(c.Submit.BaseBackoffMs) * time.Millisecond
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) requireMin(key string, value, min int) {
	if value < min {
		l.addError(fmt.Sprintf("%s must be >= %d", key, min))
	}
}

func (l *envLoader) requireMax(key string, value, max int) {
	if value > max {
		l.addError(fmt.Sprintf("%s must be <= %d", key, max))
	}
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
