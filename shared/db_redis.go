package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisJobIndex = "translation:jobs"

// RedisDB implements DatabaseClient using Redis as a key-value store
// Keys: translation:job:<id> => JSON(Job)
// Sorted set for listing: translation:jobs (score: createdAt unix nanos)
type RedisDB struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDB wraps client; ttl of zero keeps records forever.
func NewRedisDB(client *redis.Client, ttl time.Duration) *RedisDB {
	return &RedisDB{client: client, ttl: ttl}
}

func (r *RedisDB) jobKey(id string) string { return fmt.Sprintf("translation:job:%s", id) }

func (r *RedisDB) CreateJob(ctx context.Context, job *Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	ok, err := r.client.SetNX(ctx, r.jobKey(job.ID), b, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}
	return r.client.ZAdd(ctx, redisJobIndex, redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID}).Err()
}

func (r *RedisDB) GetJob(ctx context.Context, jobID string) (*Job, error) {
	val, err := r.client.Get(ctx, r.jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
		}
		return nil, err
	}
	var j Job
	if err := json.Unmarshal(val, &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &j, nil
}

func (r *RedisDB) UpdateJob(ctx context.Context, job *Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	// XX: only overwrite an existing record, KEEPTTL preserves the expiry.
	ok, err := r.client.SetArgs(ctx, r.jobKey(job.ID), b, redis.SetArgs{Mode: "XX", KeepTTL: true}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("update job %s: %w", job.ID, ErrJobNotFound)
		}
		return err
	}
	if ok != "OK" {
		return fmt.Errorf("update job %s: %w", job.ID, ErrJobNotFound)
	}
	return nil
}

func (r *RedisDB) DeleteJob(ctx context.Context, jobID string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.jobKey(jobID))
	pipe.ZRem(ctx, redisJobIndex, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return fmt.Errorf("delete job %s: %w", jobID, ErrJobNotFound)
	}
	return nil
}

func (r *RedisDB) GetAllJobs(ctx context.Context) ([]*Job, error) {
	ids, err := r.client.ZRevRange(ctx, redisJobIndex, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		j, err := r.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			// expired record, drop the stale index entry
			r.client.ZRem(ctx, redisJobIndex, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Close is a no-op; the client is shared and closed by its owner.
func (r *RedisDB) Close() error { return nil }
