package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/colorizer-data/colorizer/internal/cache"
	"github.com/colorizer-data/colorizer/internal/config"
	"github.com/colorizer-data/colorizer/internal/jobstore"
	"github.com/colorizer-data/colorizer/internal/manifest"
	"github.com/colorizer-data/colorizer/internal/synth"
)

func TestValidName(t *testing.T) {
	tests := map[string]bool{
		"manifest.json": true,
		"frame_12.png":  true,
		"":              false,
		".":             false,
		"..":            false,
		"../etc":        false,
		`a\b`:           false,
		".hidden":       false,
	}
	for name, want := range tests {
		if got := validName(name); got != want {
			t.Errorf("validName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestArtifact(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "ds"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "ds", "times.json")
	if err := os.WriteFile(path, []byte(`{"data":[0]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cm, err := cache.NewManager(cache.Config{ArtifactCacheSizeMB: 4, ArtifactTTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	defer cm.Close()
	svc := NewDatasetService(DatasetServiceConfig{Root: root, Cache: cm})

	a, err := svc.Artifact("ds", "times.json")
	if err != nil || a.Cached || string(a.Data) != `{"data":[0]}` {
		t.Fatalf("Artifact = %+v, %v", a, err)
	}
	a, err = svc.Artifact("ds", "times.json")
	if err != nil || !a.Cached {
		t.Fatalf("expected cache hit, got %+v, %v", a, err)
	}

	// A rewritten file gets a new key.
	later := time.Now().Add(time.Hour)
	if err := os.WriteFile(path, []byte(`{"data":[1]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Chtimes(path, later, later)
	a, err = svc.Artifact("ds", "times.json")
	if err != nil || a.Cached || string(a.Data) != `{"data":[1]}` {
		t.Fatalf("stale artifact served: %+v, %v", a, err)
	}

	if _, err := svc.Artifact("ds", "absent.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Artifact("..", "times.json"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
	if _, err := svc.Artifact("ds", ""); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
}

func TestExecuteConvertJob(t *testing.T) {
	in := t.TempDir()
	if _, err := synth.Generate(in, synth.Options{Frames: 2, CellsPerFrame: 2, Width: 40, Height: 30, Features: 1, Seed: 3}); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Datasets.Add("synthetic", config.DatasetConfig{
		Table:    filepath.Join(in, synth.TableName),
		Features: []config.FeatureConfig{{Column: "feature_0"}},
	})

	store, err := jobstore.NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	job := &jobstore.Job{
		ID:        "job-1",
		Dataset:   "synthetic",
		Status:    jobstore.JobStatusQueued,
		Params:    jobstore.JobParams{Dataset: "synthetic", NoFrames: true},
		CreatedAt: time.Now(),
	}
	if err := store.CreateJob(job); err != nil {
		t.Fatal(err)
	}

	datasets := NewDatasetService(DatasetServiceConfig{Root: cfg.OutputDir})
	svc := NewConvertService(cfg, datasets)
	if err := svc.ExecuteConvertJob(context.Background(), store, job.ID); err != nil {
		t.Fatalf("ExecuteConvertJob: %v", err)
	}

	got, _ := store.GetJob(job.ID)
	if got.Objects != 4 || got.Frames != 2 {
		t.Errorf("unexpected job result: %+v", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "synthetic", manifest.FileName)); err != nil {
		t.Errorf("manifest not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "synthetic", manifest.FrameFile(0))); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("noframes job wrote frames: %v", err)
	}
	entries, err := datasets.Converted()
	if err != nil || len(entries) != 1 || entries[0].Name != "synthetic" {
		t.Errorf("collection = %+v, %v", entries, err)
	}

	if err := svc.ExecuteConvertJob(context.Background(), store, "missing"); err == nil {
		t.Error("expected error for missing job")
	}
}

func TestOptionsOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Datasets.Add("a", config.DatasetConfig{Table: "/t.csv", Scale: 2})
	svc := NewConvertService(cfg, nil)

	opts, err := svc.Options(jobstore.JobParams{Dataset: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Scale != 2 || opts.NoFrames {
		t.Errorf("unexpected defaults: %+v", opts)
	}
	opts, _ = svc.Options(jobstore.JobParams{Dataset: "a", Scale: 0.25, Workers: 3, NoFrames: true})
	if opts.Scale != 0.25 || opts.Workers != 3 || !opts.NoFrames {
		t.Errorf("job overrides not applied: %+v", opts)
	}
	if _, err := svc.Options(jobstore.JobParams{Dataset: "b"}); err == nil {
		t.Error("expected error for unconfigured dataset")
	}
}
