// Package jobs defines asynchronous index rebuild jobs and the queue and
// store contracts that carry them.
package jobs

import (
	"context"
	"errors"
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ErrJobNotFound is returned by JobStore lookups for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// BuildIndexJob asks a worker to rebuild the index from the ledger and swap
// the served snapshot.
type BuildIndexJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// RequestedBy records who asked for the rebuild (e.g. "api", a request id).
	RequestedBy string `json:"requested_by,omitempty"`

	// BuildID is the build-ledger id of the last attempt, once started.
	BuildID string `json:"build_id,omitempty"`

	// Records is the number of records indexed on success.
	Records int `json:"records,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Publisher enqueues rebuild jobs.
type Publisher interface {
	// PublishBuildIndex enqueues a rebuild, filling in the id and defaults.
	// The caller keeps ownership of job; workers see a copy.
	PublishBuildIndex(ctx context.Context, job *BuildIndexJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. It may record progress (BuildID, Records) on
// the job; a returned error makes the job eligible for retry.
type JobHandler func(ctx context.Context, job *BuildIndexJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *BuildIndexJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*BuildIndexJob, error)

	// ListJobs retrieves jobs, newest first, with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*BuildIndexJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
