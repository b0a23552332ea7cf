// Package jobstore persists conversion job state using SQLite.
package jobstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// JobStatus represents the current state of a conversion job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobParams are the per-job overrides of the dataset configuration.
type JobParams struct {
	Dataset  string  `json:"dataset"`
	NoFrames bool    `json:"noframes,omitempty"`
	Scale    float64 `json:"scale,omitempty"`
	Workers  int     `json:"workers,omitempty"`
}

// JobProgress counts written frames.
type JobProgress struct {
	Phase string `json:"phase"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// timeFormat is fixed-width UTC so stored timestamps compare lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Job is one dataset conversion request.
type Job struct {
	ID         string      `json:"job_id"`
	Dataset    string      `json:"dataset"`
	Status     JobStatus   `json:"status"`
	Params     JobParams   `json:"params"`
	Progress   JobProgress `json:"progress"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Objects    int         `json:"objects"`
	Frames     int         `json:"frames"`
	Error      string      `json:"error,omitempty"`
}

// Store provides persistent storage for conversion jobs.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (or creates) the job database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS convert_jobs (
		job_id TEXT PRIMARY KEY,
		dataset TEXT NOT NULL,
		status TEXT NOT NULL,
		params_json TEXT NOT NULL,
		phase TEXT DEFAULT '',
		done INTEGER DEFAULT 0,
		total INTEGER DEFAULT 0,
		objects INTEGER DEFAULT 0,
		frames INTEGER DEFAULT 0,
		error TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_convert_jobs_dataset ON convert_jobs(dataset);
	CREATE INDEX IF NOT EXISTS idx_convert_jobs_status ON convert_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_convert_jobs_finished ON convert_jobs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

const jobColumns = `job_id, dataset, status, params_json, phase, done, total, objects, frames, error, created_at, started_at, finished_at`

// CreateJob inserts a new job record.
func (s *Store) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO convert_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Dataset,
		string(job.Status),
		string(paramsJSON),
		job.Progress.Phase,
		job.Progress.Done,
		job.Progress.Total,
		job.Objects,
		job.Frames,
		job.Error,
		job.CreatedAt.UTC().Format(timeFormat),
		nil,
		nil,
	)
	return err
}

// GetJob retrieves a job by ID. A missing job yields (nil, nil).
func (s *Store) GetJob(jobID string) (*Job, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM convert_jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// UpdateJobStatus sets the status and error message. Terminal states also
// record the finish time.
func (s *Store) UpdateJobStatus(jobID string, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finishedAt *string
	if status.Terminal() {
		t := time.Now().UTC().Format(timeFormat)
		finishedAt = &t
	}

	_, err := s.db.Exec(`
		UPDATE convert_jobs SET status = ?, error = ?, finished_at = COALESCE(?, finished_at)
		WHERE job_id = ?
	`, string(status), errMsg, finishedAt, jobID)
	return err
}

// UpdateJobStarted marks a job as running with start time.
func (s *Store) UpdateJobStarted(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(timeFormat)
	_, err := s.db.Exec(`
		UPDATE convert_jobs SET status = ?, started_at = ?
		WHERE job_id = ?
	`, string(JobStatusRunning), now, jobID)
	return err
}

// UpdateJobProgress updates the progress fields.
func (s *Store) UpdateJobProgress(jobID string, phase string, done, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE convert_jobs SET phase = ?, done = ?, total = ?
		WHERE job_id = ?
	`, phase, done, total, jobID)
	return err
}

// UpdateJobResult records the size of a finished conversion.
func (s *Store) UpdateJobResult(jobID string, objects, frames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE convert_jobs SET objects = ?, frames = ?
		WHERE job_id = ?
	`, objects, frames, jobID)
	return err
}

// ListJobs returns jobs newest first, optionally filtered by dataset.
func (s *Store) ListJobs(dataset string) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM convert_jobs`
	var args []any
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListQueuedJobs returns all queued jobs oldest first (for restart recovery).
func (s *Store) ListQueuedJobs() ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+` FROM convert_jobs WHERE status = ?
		ORDER BY created_at ASC
	`, string(JobStatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// MarkRunningAsFailed marks all running jobs as failed (for restart recovery).
func (s *Store) MarkRunningAsFailed(errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(timeFormat)
	_, err := s.db.Exec(`
		UPDATE convert_jobs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?
	`, string(JobStatusFailed), errMsg, now, string(JobStatusRunning))
	return err
}

// DeleteExpiredJobs deletes finished jobs older than retentionDays.
func (s *Store) DeleteExpiredJobs(retentionDays int) (int64, error) {
	return s.DeleteFinishedBefore(time.Now().AddDate(0, 0, -retentionDays))
}

// DeleteFinishedBefore deletes jobs that finished before cutoff.
func (s *Store) DeleteFinishedBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		DELETE FROM convert_jobs WHERE finished_at IS NOT NULL AND finished_at < ?
	`, cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// DeleteJob deletes a job.
func (s *Store) DeleteJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM convert_jobs WHERE job_id = ?", jobID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var paramsJSON string
	var createdAtStr string
	var startedAtStr, finishedAtStr sql.NullString

	err := row.Scan(
		&job.ID,
		&job.Dataset,
		&job.Status,
		&paramsJSON,
		&job.Progress.Phase,
		&job.Progress.Done,
		&job.Progress.Total,
		&job.Objects,
		&job.Frames,
		&job.Error,
		&createdAtStr,
		&startedAtStr,
		&finishedAtStr,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(paramsJSON), &job.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	job.CreatedAt, _ = time.Parse(timeFormat, createdAtStr)
	if startedAtStr.Valid {
		t, _ := time.Parse(timeFormat, startedAtStr.String)
		job.StartedAt = &t
	}
	if finishedAtStr.Valid {
		t, _ := time.Parse(timeFormat, finishedAtStr.String)
		job.FinishedAt = &t
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
