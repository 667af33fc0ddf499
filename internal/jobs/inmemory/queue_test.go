package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/jobs"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 2, store)
	defer queue.Close()

	ctx := context.Background()

	var processed atomic.Int32
	handler := func(ctx context.Context, job *jobs.MatchStatementJob) error {
		processed.Add(1)
		return nil
	}
	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &jobs.MatchStatementJob{TenantID: "t1", StatementID: "st-1"}
	if err := queue.PublishMatchStatement(ctx, job); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if job.JobID == "" {
		t.Fatal("publish must assign a job ID")
	}

	waitFor(t, 2*time.Second, func() bool {
		stored, err := store.GetJob(ctx, job.JobID)
		return err == nil && stored.Status == jobs.JobStatusCompleted
	})

	if processed.Load() != 1 {
		t.Errorf("processed = %d, want 1", processed.Load())
	}
	stored, _ := store.GetJob(ctx, job.JobID)
	if stored.StartedAt == nil || stored.CompletedAt == nil {
		t.Error("completed job must record start and completion timestamps")
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, store)
	defer queue.Close()

	ctx := context.Background()

	var attempts atomic.Int32
	handler := func(ctx context.Context, job *jobs.MatchStatementJob) error {
		attempts.Add(1)
		return errors.New("pool unreachable")
	}
	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &jobs.MatchStatementJob{TenantID: "t1", StatementID: "st-1", MaxRetries: 1}
	if err := queue.PublishMatchStatement(ctx, job); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		stored, err := store.GetJob(ctx, job.JobID)
		return err == nil && stored.Status == jobs.JobStatusFailed
	})

	// Initial attempt plus one retry.
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	stored, _ := store.GetJob(ctx, job.JobID)
	if stored.Error == "" {
		t.Error("failed job must record the handler error")
	}
}

func TestQueue_PublishAfterCloseFails(t *testing.T) {
	queue := NewQueue(1, 1, NewStore())
	if err := queue.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err := queue.PublishMatchStatement(context.Background(), &jobs.MatchStatementJob{StatementID: "st-1"})
	if err == nil {
		t.Fatal("publish on a closed queue must fail")
	}
}

func TestStore_JobLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.SaveJob(ctx, &jobs.MatchStatementJob{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("saving a job without ID error = %v, want ErrValidation", err)
	}

	job := &jobs.MatchStatementJob{JobID: "j1", StatementID: "st-1", Status: jobs.JobStatusPending, CreatedAt: time.Now()}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	// Mutating the original must not affect the stored copy.
	job.Status = jobs.JobStatusFailed
	stored, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if stored.Status != jobs.JobStatusPending {
		t.Errorf("Status = %s, want pending", stored.Status)
	}

	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetJob(missing) error = %v, want ErrNotFound", err)
	}

	listed, err := store.ListJobs(ctx, jobs.JobFilter{StatementID: "st-1"})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("len = %d, want 1", len(listed))
	}
	if listed, _ := store.ListJobs(ctx, jobs.JobFilter{StatementID: "other"}); len(listed) != 0 {
		t.Errorf("filter mismatch should return nothing, got %d", len(listed))
	}
}
