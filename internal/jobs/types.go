// Package jobs defines the asynchronous matching job model. Queue
// implementations live in subpackages (inmemory for single-instance
// deployments; a Cloud Tasks or Pub/Sub implementation can replace it
// without touching callers).
package jobs

import (
	"context"
	"time"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// MatchStatementJob asks the worker to run automatic matching over one
// statement.
type MatchStatementJob struct {
	JobID       string    `json:"job_id"`
	TenantID    string    `json:"tenant_id"`
	StatementID string    `json:"statement_id"`
	Status      JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds the last failure message when Status is failed or
	// retrying.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Handler processes one job. A returned error marks the job failed and
// eligible for retry, so handlers should only surface retryable failures and
// swallow permanent ones after logging.
type Handler func(ctx context.Context, job *MatchStatementJob) error

// Publisher enqueues matching jobs.
type Publisher interface {
	PublishMatchStatement(ctx context.Context, job *MatchStatementJob) error
	Close() error
}

// Consumer runs a handler over enqueued jobs.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}

// JobStore tracks job state so the API can report progress.
type JobStore interface {
	SaveJob(ctx context.Context, job *MatchStatementJob) error
	GetJob(ctx context.Context, jobID string) (*MatchStatementJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*MatchStatementJob, error)
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	StatementID string
	Status      JobStatus
	Limit       int
}
