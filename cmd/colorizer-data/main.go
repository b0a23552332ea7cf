// Package main is the entry point for the colorizer dataset converter and
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/colorizer-data/colorizer/internal/api"
	"github.com/colorizer-data/colorizer/internal/cache"
	"github.com/colorizer-data/colorizer/internal/config"
	"github.com/colorizer-data/colorizer/internal/logging"
	"github.com/colorizer-data/colorizer/internal/pipeline"
	"github.com/colorizer-data/colorizer/internal/service"
	"github.com/colorizer-data/colorizer/internal/synth"
	"github.com/colorizer-data/colorizer/pkg/colormap"
)

const usage = `usage: colorizer-data <command> [flags]

commands:
  convert   convert configured datasets into viewer datasets
  synth     write a synthetic input dataset
  serve     serve converted datasets and run conversion jobs
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(os.Args[2:])
	case "synth":
		err = runSynth(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "err", err)
		os.Exit(1)
	}
}

func setupLogging(cfg logging.Config) (func(), error) {
	closer, err := logging.Setup(cfg, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return func() { closer.Close() }, nil
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	configPath := fs.String("config", "config/colorizer.yaml", "Path to configuration file")
	dataset := fs.String("dataset", "", "Convert only this dataset (default: all configured)")
	output := fs.String("output", "", "Output root directory")
	tablePath := fs.String("table", "", "Convert a single table without a config entry")
	name := fs.String("name", "", "Dataset name for -table (default: table file name)")
	features := fs.String("features", "", "Comma-separated feature columns for -table")
	scale := fs.Float64("scale", 0, "Uniform scale factor for frames and centroids")
	projection := fs.String("projection", "", "Z-stack projection: max, min or none")
	noFrames := fs.Bool("noframes", false, "Write feature data and manifest only")
	workers := fs.Int("workers", 0, "Frames converted in parallel")
	strict := fs.Bool("strict", false, "Fail when a table row's label is absent from its frame")
	previewFeature := fs.String("preview", "", "Render preview_{t}.png colored by this feature")
	cmap := fs.String("colormap", colormap.Default, "Preview colormap: "+strings.Join(colormap.Names(), ", "))
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *output != "" {
		cfg.OutputDir = *output
	}
	if *scale > 0 {
		cfg.Convert.Scale = *scale
	}
	if *projection != "" {
		cfg.Convert.Projection = *projection
	}
	if *noFrames {
		cfg.Convert.NoFrames = true
	}
	if *workers > 0 {
		cfg.Convert.Workers = *workers
	}
	if *strict {
		cfg.Convert.StrictLabels = true
	}
	if *previewFeature != "" {
		cfg.Convert.Preview = &config.PreviewConfig{Feature: *previewFeature, Colormap: *cmap, Outline: true}
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	ids := cfg.Datasets.DatasetIDs()
	if *tablePath != "" {
		dsName := *name
		if dsName == "" {
			dsName = strings.TrimSuffix(filepath.Base(*tablePath), filepath.Ext(*tablePath))
		}
		ds := config.DatasetConfig{Table: *tablePath}
		for _, f := range strings.Split(*features, ",") {
			if f = strings.TrimSpace(f); f != "" {
				ds.Features = append(ds.Features, config.FeatureConfig{Column: f})
			}
		}
		cfg.Datasets.Add(dsName, ds)
		ids = []string{dsName}
	} else if *dataset != "" {
		ids = []string{*dataset}
	}
	if len(ids) == 0 {
		return errors.New("no datasets configured; pass -config or -table")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// debug.log lives in the output root.
	cfg.Log.Dir = cfg.OutputDir
	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []pipeline.Options
	for _, id := range ids {
		o, err := cfg.PipelineOptions(id)
		if err != nil {
			return err
		}
		opts = append(opts, o)
	}

	start := time.Now()
	results, err := pipeline.RunCollection(ctx, cfg.OutputDir, opts)
	if err != nil {
		return err
	}
	for _, res := range results {
		slog.Info("converted", "dataset", res.Dataset, "objects", res.Objects, "frames", res.Frames, "dir", res.Dir)
	}
	logging.Since("conversion finished", start, "datasets", len(results))
	return nil
}

func runSynth(args []string) error {
	def := synth.DefaultOptions()
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	output := fs.String("output", "synthetic", "Directory for the generated input")
	frames := fs.Int("frames", def.Frames, "Number of timepoints")
	cells := fs.Int("cells", def.CellsPerFrame, "Objects per timepoint")
	width := fs.Int("width", def.Width, "Image width")
	height := fs.Int("height", def.Height, "Image height")
	features := fs.Int("features", def.Features, "Number of random feature columns")
	seed := fs.Uint64("seed", def.Seed, "Random seed")
	fs.Parse(args)

	closeLog, err := setupLogging(logging.Config{Level: "info"})
	if err != nil {
		return err
	}
	defer closeLog()

	cols, err := synth.Generate(*output, synth.Options{
		Frames:        *frames,
		CellsPerFrame: *cells,
		Width:         *width,
		Height:        *height,
		Features:      *features,
		Seed:          *seed,
	})
	if err != nil {
		return err
	}
	slog.Info("synthetic dataset written",
		"table", filepath.Join(*output, synth.TableName),
		"features", strings.Join(cols.Features, ","))
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config/colorizer.yaml", "Path to configuration file")
	port := fs.Int("port", 0, "Override the configured port")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = cfg.OutputDir
	}
	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	cacheManager, err := cache.NewManager(cache.Config{
		ArtifactCacheSizeMB: cfg.Cache.ArtifactSizeMB,
		ArtifactTTL:         time.Duration(cfg.Cache.ArtifactTTLMinutes) * time.Minute,
		MaxEntrySize:        cfg.Cache.MaxEntryKB * 1024,
		ListingCacheSize:    cfg.Cache.ListingCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheManager.Close()

	datasets := service.NewDatasetService(service.DatasetServiceConfig{Root: cfg.OutputDir, Cache: cacheManager})
	ids := cfg.Datasets.DatasetIDs()
	registry := api.NewDatasetRegistry(datasets, ids, "")
	slog.Info("serving datasets", "root", cfg.OutputDir, "configured", len(ids))

	jobManager, err := api.NewJobManager(api.JobManagerConfig{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		SQLitePath:    cfg.Jobs.DBPath,
		RetentionDays: cfg.Jobs.RetentionDays,
		CleanupPeriod: 1 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize job manager: %w", err)
	}
	slog.Info("job manager ready", "max_concurrent", cfg.Jobs.MaxConcurrent,
		"retention_days", cfg.Jobs.RetentionDays, "sqlite", cfg.Jobs.DBPath)

	jobManager.Executor = service.NewConvertService(cfg, datasets).ExecuteConvertJob
	jobManager.Start()
	defer jobManager.Stop()

	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		JobManager:  jobManager,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server forced to shutdown", "err", err)
	}
	slog.Info("server stopped")
	return nil
}
