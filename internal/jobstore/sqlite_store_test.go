package jobstore

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "db", "jobs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)

	job := &Job{
		ID:        "j1",
		Dataset:   "nucmorph",
		Status:    JobStatusQueued,
		Params:    JobParams{Dataset: "nucmorph", NoFrames: true, Scale: 0.5},
		CreatedAt: time.Now(),
	}
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob("j1")
	if err != nil || got == nil {
		t.Fatalf("GetJob = %v, %v", got, err)
	}
	if got.Status != JobStatusQueued || !got.Params.NoFrames || got.Params.Scale != 0.5 {
		t.Fatalf("unexpected job: %+v", got)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Fatal("new job should have no start or finish time")
	}

	if err := s.UpdateJobStarted("j1"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJobProgress("j1", "frames", 3, 5); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJobResult("j1", 20, 5); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJobStatus("j1", JobStatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	got, _ = s.GetJob("j1")
	if got.Status != JobStatusCompleted || got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatalf("unexpected finished job: %+v", got)
	}
	if got.Progress.Done != 3 || got.Progress.Total != 5 || got.Objects != 20 || got.Frames != 5 {
		t.Fatalf("unexpected counts: %+v", got)
	}
}

func TestGetJobMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetJob("nope")
	if err != nil || got != nil {
		t.Fatalf("GetJob = %v, %v; want nil, nil", got, err)
	}
}

func TestRecovery(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()
	for i, id := range []string{"b", "a", "c"} {
		job := &Job{ID: id, Dataset: "d", Status: JobStatusQueued, Params: JobParams{Dataset: "d"}, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.CreateJob(job); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpdateJobStarted("c"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkRunningAsFailed("server restarted"); err != nil {
		t.Fatal(err)
	}

	queued, err := s.ListQueuedJobs()
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 2 || queued[0].ID != "b" || queued[1].ID != "a" {
		t.Fatalf("queued jobs not in creation order: %+v", queued)
	}
	c, _ := s.GetJob("c")
	if c.Status != JobStatusFailed || c.Error != "server restarted" {
		t.Fatalf("running job not failed: %+v", c)
	}

	all, err := s.ListJobs("d")
	if err != nil || len(all) != 3 || all[0].ID != "c" {
		t.Fatalf("ListJobs = %+v, %v", all, err)
	}
	if other, _ := s.ListJobs("other"); len(other) != 0 {
		t.Fatalf("expected no jobs for other dataset, got %d", len(other))
	}
}

func TestDeleteFinishedBefore(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"done", "queued"} {
		if err := s.CreateJob(&Job{ID: id, Dataset: "d", Status: JobStatusQueued, CreatedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpdateJobStatus("done", JobStatusCancelled, ""); err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteFinishedBefore(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted %d jobs, want 1", n)
	}
	if j, _ := s.GetJob("queued"); j == nil {
		t.Fatal("unfinished job must survive cleanup")
	}

	if n, _ := s.DeleteExpiredJobs(7); n != 0 {
		t.Fatalf("expected nothing expired, got %d", n)
	}
}
