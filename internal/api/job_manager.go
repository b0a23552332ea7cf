package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/colorizer-data/colorizer/internal/jobstore"
)

// JobManagerConfig contains configuration for the job manager.
type JobManagerConfig struct {
	MaxConcurrent int    // Max concurrent conversions (default 1)
	SQLitePath    string // Path to SQLite database
	RetentionDays int    // Days to keep finished jobs (default 7)
	CleanupPeriod time.Duration
	QueueSize     int
}

// JobManager manages conversion jobs with SQLite persistence.
type JobManager struct {
	cfg      JobManagerConfig
	store    *jobstore.Store
	queue    chan string // job IDs
	running  map[string]context.CancelFunc
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	// Executor is called to run the conversion.
	Executor func(ctx context.Context, store *jobstore.Store, jobID string) error
}

// NewJobManager creates a new job manager with SQLite persistence.
func NewJobManager(cfg JobManagerConfig) (*JobManager, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 1 * time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	store, err := jobstore.NewStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	jm := &JobManager{
		cfg:     cfg,
		store:   store,
		queue:   make(chan string, cfg.QueueSize),
		running: make(map[string]context.CancelFunc),
		stopCh:  make(chan struct{}),
	}
	return jm, nil
}

// Store returns the underlying store for direct access.
func (jm *JobManager) Store() *jobstore.Store {
	return jm.store
}

// Start starts the worker goroutines and cleanup ticker.
// Also recovers from previous shutdown.
func (jm *JobManager) Start() {
	// Jobs that were running when the server stopped cannot be resumed.
	if err := jm.store.MarkRunningAsFailed("server restarted"); err != nil {
		slog.Error("failed to mark running jobs as failed", "err", err)
	}

	queued, err := jm.store.ListQueuedJobs()
	if err != nil {
		slog.Error("failed to list queued jobs", "err", err)
	} else {
		for _, job := range queued {
			select {
			case jm.queue <- job.ID:
				slog.Info("re-queued job", "job", job.ID, "dataset", job.Dataset)
			default:
				slog.Warn("queue full, cannot re-queue job", "job", job.ID)
			}
		}
	}

	for i := 0; i < jm.cfg.MaxConcurrent; i++ {
		jm.wg.Add(1)
		go jm.worker()
	}

	go jm.cleaner()
}

// Stop cancels running jobs and waits for the workers to exit.
func (jm *JobManager) Stop() {
	jm.stopOnce.Do(func() {
		close(jm.stopCh)
		jm.mu.Lock()
		for _, cancel := range jm.running {
			cancel()
		}
		jm.mu.Unlock()
		jm.wg.Wait()
		jm.store.Close()
	})
}

func (jm *JobManager) worker() {
	defer jm.wg.Done()
	for {
		select {
		case <-jm.stopCh:
			return
		case jobID := <-jm.queue:
			jm.runJob(jobID)
		}
	}
}

func (jm *JobManager) runJob(jobID string) {
	job, err := jm.store.GetJob(jobID)
	if err != nil || job == nil || job.Status != jobstore.JobStatusQueued {
		// Cancelled or deleted while waiting in the queue.
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop closes stopCh before cancelling under mu, so a job registered
	// here is either seen by Stop or never started.
	jm.mu.Lock()
	select {
	case <-jm.stopCh:
		jm.mu.Unlock()
		slog.Info("server stopping, job left queued", "job", jobID)
		return
	default:
	}
	jm.running[jobID] = cancel
	jm.mu.Unlock()

	defer func() {
		jm.mu.Lock()
		delete(jm.running, jobID)
		jm.mu.Unlock()
	}()

	if err := jm.store.UpdateJobStarted(jobID); err != nil {
		slog.Error("failed to mark job started", "job", jobID, "err", err)
		return
	}
	log := slog.With("job", jobID, "dataset", job.Dataset)
	log.Info("job started")

	var execErr error
	if jm.Executor != nil {
		execErr = jm.Executor(ctx, jm.store, jobID)
	}

	var status jobstore.JobStatus
	var msg string
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		status, msg = jobstore.JobStatusCancelled, "cancelled"
	case execErr != nil:
		status, msg = jobstore.JobStatusFailed, execErr.Error()
	default:
		status = jobstore.JobStatusCompleted
	}
	if err := jm.store.UpdateJobStatus(jobID, status, msg); err != nil {
		log.Error("failed to update job status", "err", err)
	}
	log.Info("job finished", "status", status, "error", msg)
}

func (jm *JobManager) cleaner() {
	ticker := time.NewTicker(jm.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.cleanup()
		}
	}
}

func (jm *JobManager) cleanup() {
	deleted, err := jm.store.DeleteExpiredJobs(jm.cfg.RetentionDays)
	if err != nil {
		slog.Error("job cleanup failed", "err", err)
	} else if deleted > 0 {
		slog.Info("cleaned up expired jobs", "count", deleted)
	}
}

// Submit creates a new job and enqueues it for execution.
func (jm *JobManager) Submit(params jobstore.JobParams) (*jobstore.Job, error) {
	job := &jobstore.Job{
		ID:        uuid.NewString(),
		Dataset:   params.Dataset,
		Status:    jobstore.JobStatusQueued,
		Params:    params,
		CreatedAt: time.Now(),
	}

	if err := jm.store.CreateJob(job); err != nil {
		return nil, err
	}

	select {
	case jm.queue <- job.ID:
	default:
		job.Status = jobstore.JobStatusFailed
		job.Error = "job queue is full; try again later"
		jm.store.UpdateJobStatus(job.ID, job.Status, job.Error)
	}

	return job, nil
}

// Get returns a job by ID.
func (jm *JobManager) Get(id string) *jobstore.Job {
	job, err := jm.store.GetJob(id)
	if err != nil {
		slog.Error("failed to get job", "job", id, "err", err)
		return nil
	}
	return job
}

// List returns jobs newest first, optionally for one dataset.
func (jm *JobManager) List(dataset string) ([]*jobstore.Job, error) {
	return jm.store.ListJobs(dataset)
}

// Cancel attempts to cancel a queued or running job.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.Lock()
	cancel, ok := jm.running[id]
	jm.mu.Unlock()

	if ok && cancel != nil {
		cancel()
		return true
	}

	job, err := jm.store.GetJob(id)
	if err != nil || job == nil {
		return false
	}
	if job.Status == jobstore.JobStatusQueued {
		jm.store.UpdateJobStatus(id, jobstore.JobStatusCancelled, "cancelled before start")
		return true
	}
	return false
}

// Delete deletes a job.
func (jm *JobManager) Delete(id string) error {
	return jm.store.DeleteJob(id)
}
