package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvStoreBackend = "STORE_BACKEND"
	EnvPostgresDSN  = "POSTGRES_DSN"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
	EnvEnvFile  = "ENV_FILE"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvLockTimeout      = "LOCK_TIMEOUT"
	EnvPromotionTimeout = "PROMOTION_TIMEOUT"

	EnvDispatchBackend       = "DISPATCH_BACKEND"
	EnvDispatchTimeout       = "DISPATCH_TIMEOUT"
	EnvNotificationTopic     = "NOTIFICATION_TOPIC"
	EnvAuditTopic            = "AUDIT_TOPIC"
	EnvDispatchDLQTopic      = "DISPATCH_DLQ_TOPIC"
	EnvNotifierConsumerGroup = "NOTIFIER_CONSUMER_GROUP"
	EnvRabbitMQURL           = "RABBITMQ_URL"
	EnvRabbitMQExchange      = "RABBITMQ_EXCHANGE"
)
