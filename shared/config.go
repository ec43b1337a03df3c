// shared/config.go
package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultAPIGatewayPort = "8080"
	DefaultWorkerPort     = "8081"
	DefaultMaxWorkers     = 3
	DefaultAdminToken     = "super-secret-admin-token-change-me" // CHANGE THIS IN PRODUCTION
	DefaultAllowedOrigins = "*"
	DefaultRateLimitRPM   = 300
	DefaultQueueName      = "translation-jobs"
	DefaultOutputDir      = "data"
	DefaultMaxUploadBytes = 15 << 20
	DefaultBatchMaxChars  = 6000
	DefaultEngineTimeout  = 120
	DefaultKafkaGroupID   = "translation-workers"
	DefaultMinioBucket    = "translations"
)

// Backend names accepted by JOB_STORE, QUEUE_BACKEND and STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendAMQP     = "amqp"
	BackendKafka    = "kafka"
	BackendLocal    = "local"
	BackendMinio    = "minio"
)

// Config holds global configuration for the services
type Config struct {
	APIGatewayPort string
	WorkerPort     string
	MaxWorkers     int
	AdminToken     string
	// Redis is required by the redis job store and queue; it also backs the
	// rate limiter when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Job store
	JobStore    string
	PostgresDSN string
	// Queue
	QueueBackend   string
	QueueName      string
	QueueMaxLength int
	AMQPURL        string
	KafkaBrokers   []string
	KafkaGroupID   string
	// Artifact storage
	StorageBackend string
	OutputDir      string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// HTTP surface
	AllowedOrigins   []string
	RateLimitRPM     int
	MaxUploadBytes   int64
	PublicAPIBaseURL string
	// Translation
	EngineURL      string
	EngineTimeout  time.Duration
	BatchMaxChars  int
	EmbeddedWorker bool
	// Logging
	LogLevel  string
	LogFormat string
}

// LoadDotEnv loads the first .env file found; missing files are not an error.
func LoadDotEnv(logger log.Logger, paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			level.Info(logger).Log("msg", "loaded env file", "path", path)
			return
		}
	}
	level.Debug(logger).Log("msg", "no .env file found, using environment variables")
}

// LoadConfig loads configuration from environment variables or uses defaults
func LoadConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("API_GATEWAY_PORT", DefaultAPIGatewayPort)
	v.SetDefault("WORKER_PORT", DefaultWorkerPort)
	v.SetDefault("MAX_WORKERS", DefaultMaxWorkers)
	v.SetDefault("ADMIN_TOKEN", DefaultAdminToken)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JOB_STORE", BackendMemory)
	v.SetDefault("QUEUE_BACKEND", BackendMemory)
	v.SetDefault("QUEUE_NAME", DefaultQueueName)
	v.SetDefault("QUEUE_MAX_LENGTH", 0)
	v.SetDefault("KAFKA_GROUP_ID", DefaultKafkaGroupID)
	v.SetDefault("STORAGE_BACKEND", BackendLocal)
	v.SetDefault("OUTPUT_DIR", DefaultOutputDir)
	v.SetDefault("MINIO_BUCKET", DefaultMinioBucket)
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("ALLOWED_ORIGINS", DefaultAllowedOrigins)
	v.SetDefault("RATE_LIMIT_RPM", DefaultRateLimitRPM)
	v.SetDefault("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)
	v.SetDefault("ENGINE_TIMEOUT_SECONDS", DefaultEngineTimeout)
	v.SetDefault("BATCH_MAX_CHARS", DefaultBatchMaxChars)
	v.SetDefault("EMBEDDED_WORKER", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "logfmt")

	maxWorkers := v.GetInt("MAX_WORKERS")
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	rateLimit := v.GetInt("RATE_LIMIT_RPM")
	if rateLimit < 0 {
		rateLimit = DefaultRateLimitRPM
	}
	maxUpload := v.GetInt64("MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	batchChars := v.GetInt("BATCH_MAX_CHARS")
	if batchChars <= 0 {
		batchChars = DefaultBatchMaxChars
	}
	engineTimeout := v.GetInt("ENGINE_TIMEOUT_SECONDS")
	if engineTimeout <= 0 {
		engineTimeout = DefaultEngineTimeout
	}
	queueMaxLen := v.GetInt("QUEUE_MAX_LENGTH")
	if queueMaxLen < 0 {
		queueMaxLen = 0
	}

	return &Config{
		APIGatewayPort:   valueOrDefault(v.GetString("API_GATEWAY_PORT"), DefaultAPIGatewayPort),
		WorkerPort:       valueOrDefault(v.GetString("WORKER_PORT"), DefaultWorkerPort),
		MaxWorkers:       maxWorkers,
		AdminToken:       valueOrDefault(v.GetString("ADMIN_TOKEN"), DefaultAdminToken),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		JobStore:         strings.ToLower(strings.TrimSpace(v.GetString("JOB_STORE"))),
		PostgresDSN:      v.GetString("POSTGRES_DSN"),
		QueueBackend:     strings.ToLower(strings.TrimSpace(v.GetString("QUEUE_BACKEND"))),
		QueueName:        valueOrDefault(v.GetString("QUEUE_NAME"), DefaultQueueName),
		QueueMaxLength:   queueMaxLen,
		AMQPURL:          v.GetString("AMQP_URL"),
		KafkaBrokers:     splitAndClean(v.GetString("KAFKA_BROKERS")),
		KafkaGroupID:     valueOrDefault(v.GetString("KAFKA_GROUP_ID"), DefaultKafkaGroupID),
		StorageBackend:   strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_BACKEND"))),
		OutputDir:        valueOrDefault(v.GetString("OUTPUT_DIR"), DefaultOutputDir),
		MinioEndpoint:    v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:   v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey:   v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:      valueOrDefault(v.GetString("MINIO_BUCKET"), DefaultMinioBucket),
		MinioUseSSL:      v.GetBool("MINIO_USE_SSL"),
		AllowedOrigins:   splitAndClean(valueOrDefault(v.GetString("ALLOWED_ORIGINS"), DefaultAllowedOrigins)),
		RateLimitRPM:     rateLimit,
		MaxUploadBytes:   maxUpload,
		PublicAPIBaseURL: strings.TrimRight(v.GetString("PUBLIC_API_BASE_URL"), "/"),
		EngineURL:        v.GetString("ENGINE_URL"),
		EngineTimeout:    time.Duration(engineTimeout) * time.Second,
		BatchMaxChars:    batchChars,
		EmbeddedWorker:   v.GetBool("EMBEDDED_WORKER"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFormat:        v.GetString("LOG_FORMAT"),
	}
}

// Validate rejects backend combinations that cannot start.
func (c *Config) Validate() error {
	switch c.JobStore {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("JOB_STORE=redis requires REDIS_ADDR")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("JOB_STORE=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown JOB_STORE %q", c.JobStore)
	}

	switch c.QueueBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("QUEUE_BACKEND=redis requires REDIS_ADDR")
		}
	case BackendAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("QUEUE_BACKEND=amqp requires AMQP_URL")
		}
	case BackendKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("QUEUE_BACKEND=kafka requires KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}

	switch c.StorageBackend {
	case BackendLocal:
	case BackendMinio:
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("STORAGE_BACKEND=minio requires MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

// SharedInProcess reports whether the gateway and worker must live in one
// process to see the same jobs.
func (c *Config) SharedInProcess() bool {
	return c.JobStore == BackendMemory || c.QueueBackend == BackendMemory
}

// valueOrDefault returns fallback if s is empty
func valueOrDefault(s string, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// splitAndClean splits a comma-separated list and trims spaces; empty entries are removed
func splitAndClean(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return []string{}
	}
	parts := strings.Split(csv, ",")
	var out []string
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}
