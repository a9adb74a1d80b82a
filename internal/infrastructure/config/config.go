package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envKeyReplacer maps nested keys to env names: processor.secret_key -> STOREFRONT_PROCESSOR_SECRET_KEY.
var envKeyReplacer = strings.NewReplacer(".", "_")

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	Checkout      CheckoutConfig      `mapstructure:"checkout"`
	Effects       EffectsConfig       `mapstructure:"effects"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Email         EmailConfig         `mapstructure:"email"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	// JWTSecret enables bearer auth on customer endpoints when set.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type RateLimitConfig struct {
	CheckoutPerMinute int `mapstructure:"checkout_per_minute"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type ProcessorConfig struct {
	// Driver selects the payment processor: "stripe" or "mock".
	Driver           string        `mapstructure:"driver"`
	SecretKey        string        `mapstructure:"secret_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
	// APIBase overrides the processor API endpoint (stripe-mock, tests).
	APIBase                 string        `mapstructure:"api_base"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

type CheckoutConfig struct {
	SuccessURL string `mapstructure:"success_url"`
	CancelURL  string `mapstructure:"cancel_url"`
	Currency   string `mapstructure:"currency"`
}

type EffectsConfig struct {
	// Timeout bounds each post-transition effect independently.
	Timeout time.Duration `mapstructure:"timeout"`
}

type NotificationConfig struct {
	// Driver selects where order confirmations go: "redis", "sns" or "none".
	Driver      string `mapstructure:"driver"`
	Stream      string `mapstructure:"stream"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
	AWSRegion   string `mapstructure:"aws_region"`
	AWSEndpoint string `mapstructure:"aws_endpoint"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type WorkerConfig struct {
	BatchSize      int64         `mapstructure:"batch_size"`
	BlockDuration  time.Duration `mapstructure:"block_duration"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	SendAttempts   uint          `mapstructure:"send_attempts"`
	SendRetryDelay time.Duration `mapstructure:"send_retry_delay"`

	// ClaimMinIdle is how long a delivered message may stay unacked before
	// another consumer takes it over.
	ClaimMinIdle    time.Duration `mapstructure:"claim_min_idle"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/storefront")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	switch c.Processor.Driver {
	case "stripe":
		if c.Processor.SecretKey == "" {
			errs = append(errs, fmt.Errorf("processor.secret_key is required for the stripe driver"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("processor.driver must be stripe or mock, got %q", c.Processor.Driver))
	}
	if c.Processor.WebhookSecret == "" {
		errs = append(errs, fmt.Errorf("processor.webhook_secret is required"))
	}
	if c.Processor.WebhookTolerance <= 0 {
		errs = append(errs, fmt.Errorf("processor.webhook_tolerance must be positive"))
	}

	if c.Checkout.SuccessURL == "" || c.Checkout.CancelURL == "" {
		errs = append(errs, fmt.Errorf("checkout.success_url and checkout.cancel_url are required"))
	}
	if len(c.Checkout.Currency) != 3 {
		errs = append(errs, fmt.Errorf("checkout.currency must be a 3-letter code"))
	}

	if c.Effects.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("effects.timeout must be positive"))
	}

	switch c.Notification.Driver {
	case "redis", "none":
	case "sns":
		if c.Notification.SNSTopicARN == "" {
			errs = append(errs, fmt.Errorf("notification.sns_topic_arn is required for the sns driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("notification.driver must be redis, sns or none, got %q", c.Notification.Driver))
	}

	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("worker.lock_ttl must be positive"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Processor.Driver == "mock" {
			errs = append(errs, fmt.Errorf("processor.driver mock is not allowed in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "storefront")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "storefront")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Processor defaults
	v.SetDefault("processor.driver", "mock")
	v.SetDefault("processor.secret_key", "")
	v.SetDefault("processor.webhook_secret", "whsec_local_development_secret")
	v.SetDefault("processor.webhook_tolerance", "5m")
	v.SetDefault("processor.api_base", "")
	v.SetDefault("processor.request_timeout", "10s")
	v.SetDefault("processor.circuit_breaker_threshold", 5)
	v.SetDefault("processor.circuit_breaker_timeout", "30s")

	// Checkout defaults
	v.SetDefault("checkout.success_url", "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("checkout.cancel_url", "http://localhost:3000/cart")
	v.SetDefault("checkout.currency", "usd")

	// Effects defaults
	v.SetDefault("effects.timeout", "5s")

	// Notification defaults
	v.SetDefault("notification.driver", "redis")
	v.SetDefault("notification.stream", "orders:confirmations")
	v.SetDefault("notification.sns_topic_arn", "")
	v.SetDefault("notification.aws_region", "us-east-1")
	v.SetDefault("notification.aws_endpoint", "")

	// Email defaults
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "orders@storefront.local")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "order-confirmations")
	v.SetDefault("worker.lock_ttl", "30s")
	v.SetDefault("worker.idempotency_ttl", "24h")
	v.SetDefault("worker.send_attempts", 3)
	v.SetDefault("worker.send_retry_delay", "1s")
	v.SetDefault("worker.claim_min_idle", "1m")
	v.SetDefault("worker.cleanup_interval", "1h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")

	// Rate limit defaults
	v.SetDefault("rate_limit.checkout_per_minute", 30)

	v.SetDefault("instance_id", "storefront-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL is the URL form golang-migrate expects.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SMTPAddr returns host:port, or "" when SMTP is not configured.
func (c *EmailConfig) SMTPAddr() string {
	if c.SMTPHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
}
