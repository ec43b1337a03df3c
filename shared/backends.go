package shared

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Backends bundles the infrastructure a service runs against.
type Backends struct {
	Redis      *redis.Client
	DB         DatabaseClient
	Queue      MessageQueueClient
	Store      ObjectStore
	Translator Translator
}

// OpenBackends connects every backend selected by cfg. role names the
// process (gateway, worker) and seeds the queue consumer name.
func OpenBackends(ctx context.Context, cfg *Config, role string, logger log.Logger) (*Backends, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backends{Redis: NewRedisClient(cfg)}
	if b.Redis != nil {
		if err := PingRedis(ctx, b.Redis); err != nil {
			b.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		level.Info(logger).Log("msg", "connected to redis", "addr", cfg.RedisAddr)
	}

	var err error
	if b.DB, err = openJobStore(ctx, cfg, b.Redis); err != nil {
		b.Close()
		return nil, err
	}
	if b.Queue, err = openQueue(cfg, b.Redis, role, logger); err != nil {
		b.Close()
		return nil, err
	}
	if b.Store, err = openObjectStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	b.Translator = NewTranslator(cfg)

	level.Info(logger).Log("msg", "backends ready",
		"job_store", cfg.JobStore, "queue", cfg.QueueBackend, "storage", cfg.StorageBackend,
		"engine", cfg.EngineURL != "")
	return b, nil
}

func openJobStore(ctx context.Context, cfg *Config, rdb *redis.Client) (DatabaseClient, error) {
	switch cfg.JobStore {
	case BackendRedis:
		return NewRedisDB(rdb, 0), nil
	case BackendPostgres:
		db, err := NewPostgresDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return NewInMemoryDB(), nil
	}
}

func openQueue(cfg *Config, rdb *redis.Client, role string, logger log.Logger) (MessageQueueClient, error) {
	switch cfg.QueueBackend {
	case BackendRedis:
		return NewRedisQueue(rdb, cfg.QueueName, cfg.QueueName+"-workers", consumerName(role), cfg.QueueMaxLength, logger), nil
	case BackendAMQP:
		q, err := NewAMQPQueue(cfg.AMQPURL, cfg.QueueName, cfg.MaxWorkers, logger)
		if err != nil {
			return nil, err
		}
		return q, nil
	case BackendKafka:
		return NewKafkaQueue(cfg.KafkaBrokers, cfg.QueueName, cfg.KafkaGroupID, logger), nil
	default:
		size := cfg.QueueMaxLength
		if size <= 0 {
			size = 100
		}
		return NewInMemoryQueue(size), nil
	}
}

func openObjectStore(ctx context.Context, cfg *Config) (ObjectStore, error) {
	switch cfg.StorageBackend {
	case BackendMinio:
		store, err := NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := NewLocalStore(cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// NewTranslator returns the HTTP engine client, or a passthrough when ENGINE_URL is unset.
func NewTranslator(cfg *Config) Translator {
	if cfg.EngineURL == "" {
		return PassthroughTranslator{}
	}
	return NewHTTPTranslator(cfg.EngineURL, cfg.EngineTimeout)
}

func consumerName(role string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "host"
	}
	return fmt.Sprintf("%s-%s-%s", role, host, uuid.NewString()[:8])
}

// Close releases every opened backend.
func (b *Backends) Close() {
	if b.Queue != nil {
		b.Queue.Close()
	}
	if b.DB != nil {
		b.DB.Close()
	}
	if b.Redis != nil {
		b.Redis.Close()
	}
}
