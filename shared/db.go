// shared/db.go
package shared

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DatabaseClient is the authoritative store of job records
type DatabaseClient interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, jobID string) error
	GetAllJobs(ctx context.Context) ([]*Job, error) // For admin purposes, newest first
	Close() error
}

// InMemoryDB implements DatabaseClient using an in-memory map
type InMemoryDB struct {
	jobs      map[string]*Job
	jobsMutex sync.RWMutex
}

// NewInMemoryDB creates a new in-memory database instance
func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{
		jobs: make(map[string]*Job),
	}
}

// CreateJob adds a new job to the database
func (db *InMemoryDB) CreateJob(_ context.Context, job *Job) error {
	db.jobsMutex.Lock()
	defer db.jobsMutex.Unlock()

	if _, exists := db.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}
	stored := *job
	db.jobs[job.ID] = &stored
	return nil
}

// GetJob retrieves a copy of a job by its ID
func (db *InMemoryDB) GetJob(_ context.Context, jobID string) (*Job, error) {
	db.jobsMutex.RLock()
	defer db.jobsMutex.RUnlock()

	job, exists := db.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	copiedJob := *job
	return &copiedJob, nil
}

// UpdateJob replaces an existing job
func (db *InMemoryDB) UpdateJob(_ context.Context, job *Job) error {
	db.jobsMutex.Lock()
	defer db.jobsMutex.Unlock()

	if _, exists := db.jobs[job.ID]; !exists {
		return fmt.Errorf("update job %s: %w", job.ID, ErrJobNotFound)
	}
	stored := *job
	db.jobs[job.ID] = &stored
	return nil
}

// DeleteJob removes a job from the database
func (db *InMemoryDB) DeleteJob(_ context.Context, jobID string) error {
	db.jobsMutex.Lock()
	defer db.jobsMutex.Unlock()

	if _, exists := db.jobs[jobID]; !exists {
		return fmt.Errorf("delete job %s: %w", jobID, ErrJobNotFound)
	}
	delete(db.jobs, jobID)
	return nil
}

// GetAllJobs retrieves all jobs, newest first
func (db *InMemoryDB) GetAllJobs(_ context.Context) ([]*Job, error) {
	db.jobsMutex.RLock()
	defer db.jobsMutex.RUnlock()

	allJobs := make([]*Job, 0, len(db.jobs))
	for _, job := range db.jobs {
		copiedJob := *job
		allJobs = append(allJobs, &copiedJob)
	}
	sort.Slice(allJobs, func(i, k int) bool {
		return allJobs[i].CreatedAt.After(allJobs[k].CreatedAt)
	})
	return allJobs, nil
}

func (db *InMemoryDB) Close() error { return nil }
