package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"labslot/pkg/client"
	"labslot/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	StoreBackend string
	PostgresDSN  string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LockTimeout      time.Duration
	PromotionTimeout time.Duration

	DispatchBackend       string
	DispatchTimeout       time.Duration
	NotificationTopic     string
	AuditTopic            string
	DispatchDLQTopic      string
	NotifierConsumerGroup string
	RabbitMQURL           string
	RabbitMQExchange      string

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the service configuration from the environment. A .env file
// (or the file named by ENV_FILE) is applied first when present; variables
// already set in the process environment win.
func Load(serviceName string) *Config {
	loadEnvFile()

	cfg := FromEnv(serviceName)
	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from the current environment without validating it.
func FromEnv(serviceName string) *Config {
	return &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		StoreBackend: getEnvStr(EnvStoreBackend, DefaultStoreBackend),
		PostgresDSN:  getEnvStr(EnvPostgresDSN, DefaultPostgresDSN),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		LockTimeout:      getEnvDuration(EnvLockTimeout, DefaultLockTimeout),
		PromotionTimeout: getEnvDuration(EnvPromotionTimeout, DefaultPromotionTimeout),

		DispatchBackend:       getEnvStr(EnvDispatchBackend, DefaultDispatchBackend),
		DispatchTimeout:       getEnvDuration(EnvDispatchTimeout, DefaultDispatchTimeout),
		NotificationTopic:     getEnvStr(EnvNotificationTopic, DefaultNotificationTopic),
		AuditTopic:            getEnvStr(EnvAuditTopic, DefaultAuditTopic),
		DispatchDLQTopic:      getEnvStr(EnvDispatchDLQTopic, DefaultDispatchDLQTopic),
		NotifierConsumerGroup: getEnvStr(EnvNotifierConsumerGroup, DefaultNotifierConsumerGroup),
		RabbitMQURL:           getEnvStr(EnvRabbitMQURL, DefaultRabbitMQURL),
		RabbitMQExchange:      getEnvStr(EnvRabbitMQExchange, DefaultRabbitMQExchange),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}
}

func loadEnvFile() {
	if path := os.Getenv(EnvEnvFile); path != "" {
		_ = godotenv.Load(path)
		return
	}
	_ = godotenv.Load()
}

// SetStore opens the connection for the configured store backend.
func (cfg *Config) SetStore() {
	switch cfg.StoreBackend {
	case StoreMongo:
		cfg.SetMongo()
	case StorePostgres:
		cfg.Client.SetPostgres(cfg.Log, cfg.PostgresDSN, cfg.MongoConnTimeout)
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreBackend {
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			errors = append(errors, "PostgresDSN cannot be empty")
		}
	case StoreMemory:
	default:
		errors = append(errors, fmt.Sprintf("StoreBackend must be one of [mongo, postgres, memory], got: %s", cfg.StoreBackend))
	}

	switch cfg.DispatchBackend {
	case DispatchKafka:
		if cfg.NotificationTopic == "" || cfg.AuditTopic == "" {
			errors = append(errors, "NotificationTopic and AuditTopic cannot be empty")
		}
	case DispatchRabbitMQ:
		if cfg.RabbitMQURL == "" {
			errors = append(errors, "RabbitMQURL cannot be empty")
		}
		if cfg.RabbitMQExchange == "" {
			errors = append(errors, "RabbitMQExchange cannot be empty")
		}
	case DispatchLog:
	default:
		errors = append(errors, fmt.Sprintf("DispatchBackend must be one of [kafka, rabbitmq, log], got: %s", cfg.DispatchBackend))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.LockTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("LockTimeout must be positive, got: %s", cfg.LockTimeout))
	}
	if cfg.PromotionTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("PromotionTimeout must be positive, got: %s", cfg.PromotionTimeout))
	}
	if cfg.DispatchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("DispatchTimeout must be positive, got: %s", cfg.DispatchTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_backend", cfg.StoreBackend,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"postgres_dsn_set", cfg.PostgresDSN != "",
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"lock_timeout", cfg.LockTimeout,
		"promotion_timeout", cfg.PromotionTimeout,
		"dispatch_backend", cfg.DispatchBackend,
		"dispatch_timeout", cfg.DispatchTimeout,
		"notification_topic", cfg.NotificationTopic,
		"audit_topic", cfg.AuditTopic,
		"rabbitmq_exchange", cfg.RabbitMQExchange,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
