package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createJobsTable = `
	CREATE TABLE IF NOT EXISTS translation_jobs (
		id         TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		data       JSONB NOT NULL
	)
`

// PostgresDB implements DatabaseClient with one JSONB row per job.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB connects, pings and ensures the jobs table exists.
func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createJobsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create jobs table: %w", err)
	}
	return &PostgresDB{pool: pool}, nil
}

func (p *PostgresDB) CreateJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO translation_jobs (id, created_at, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, job.ID, job.CreatedAt, data)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}
	return nil
}

func (p *PostgresDB) GetJob(ctx context.Context, jobID string) (*Job, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM translation_jobs WHERE id = $1`, jobID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &j, nil
}

func (p *PostgresDB) UpdateJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	tag, err := p.pool.Exec(ctx, `UPDATE translation_jobs SET data = $2 WHERE id = $1`, job.ID, data)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, ErrJobNotFound)
	}
	return nil
}

func (p *PostgresDB) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM translation_jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete job %s: %w", jobID, ErrJobNotFound)
	}
	return nil
}

func (p *PostgresDB) GetAllJobs(ctx context.Context) ([]*Job, error) {
	rows, err := p.pool.Query(ctx, `SELECT data FROM translation_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*Job{}
	}
	return jobs, nil
}

func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}
