package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/colorizer-data/colorizer/internal/config"
	"github.com/colorizer-data/colorizer/internal/jobstore"
	"github.com/colorizer-data/colorizer/internal/manifest"
	"github.com/colorizer-data/colorizer/internal/pipeline"
)

// ConvertService runs dataset conversions for queued jobs.
type ConvertService struct {
	cfg      *config.Config
	datasets *DatasetService

	// Source overrides the frame source of every run; used by tests.
	Source pipeline.FrameSource

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	collMu sync.Mutex
}

// NewConvertService creates a new convert service.
func NewConvertService(cfg *config.Config, datasets *DatasetService) *ConvertService {
	return &ConvertService{
		cfg:      cfg,
		datasets: datasets,
		locks:    make(map[string]*sync.Mutex),
	}
}

// datasetLock serializes conversions writing the same dataset directory.
func (s *ConvertService) datasetLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// Options builds the pipeline options for job parameters.
func (s *ConvertService) Options(params jobstore.JobParams) (pipeline.Options, error) {
	opts, err := s.cfg.PipelineOptions(params.Dataset)
	if err != nil {
		return opts, err
	}
	if params.NoFrames {
		opts.NoFrames = true
	}
	if params.Scale > 0 {
		opts.Scale = params.Scale
	}
	if params.Workers > 0 {
		opts.Workers = params.Workers
	}
	opts.Source = s.Source
	return opts, nil
}

// ExecuteConvertJob converts the job's dataset (called by JobManager worker).
func (s *ConvertService) ExecuteConvertJob(ctx context.Context, store *jobstore.Store, jobID string) error {
	job, err := store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}

	opts, err := s.Options(job.Params)
	if err != nil {
		return err
	}
	opts.Progress = func(done, total int) {
		if err := store.UpdateJobProgress(jobID, "frames", done, total); err != nil {
			slog.Warn("failed to record job progress", "job", jobID, "err", err)
		}
	}

	lock := s.datasetLock(opts.Dataset)
	lock.Lock()
	defer lock.Unlock()

	if err := store.UpdateJobProgress(jobID, "converting", 0, 0); err != nil {
		return err
	}
	res, err := pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(opts.OutputDir, manifest.CollectionFile)
	s.collMu.Lock()
	err = manifest.UpdateCollection(path, opts.Dataset, opts.Dataset)
	s.collMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to update collection: %w", err)
	}
	if s.datasets != nil {
		s.datasets.Invalidate()
	}

	if err := store.UpdateJobProgress(jobID, "done", res.Frames, res.Frames); err != nil {
		return err
	}
	return store.UpdateJobResult(jobID, res.Objects, res.Frames)
}
