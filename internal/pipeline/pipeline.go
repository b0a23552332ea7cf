// Package pipeline converts a segmentation timelapse and its measurement
// table into a viewer dataset: feature arrays first, then one packed index
// PNG per timepoint with the shared bounds array, and the manifest last.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/colorizer-data/colorizer/internal/codec"
	"github.com/colorizer-data/colorizer/internal/data/table"
	"github.com/colorizer-data/colorizer/internal/features"
	"github.com/colorizer-data/colorizer/internal/frame"
	"github.com/colorizer-data/colorizer/internal/labels"
	"github.com/colorizer-data/colorizer/internal/manifest"
	"github.com/colorizer-data/colorizer/internal/render"
	"github.com/colorizer-data/colorizer/internal/writer"
)

// FeatureSpec selects a feature column. Name and Units default to the
// column name with a trailing "(units)" split off.
type FeatureSpec struct {
	Column string
	Name   string
	Units  string
}

// PreviewOptions enables preview_{t}.png rendering.
type PreviewOptions struct {
	Feature  string
	Colormap string
	Outline  bool
}

// Options configures one dataset conversion.
type Options struct {
	Dataset        string
	OutputDir      string
	Table          string
	Columns        table.Columns
	Features       []FeatureSpec
	Projection     frame.Projection
	Scale          float64
	NoFrames       bool
	Workers        int
	MaxLabel       uint32
	StrictLabels   bool
	ChunkCacheSize int
	Preview        *PreviewOptions

	// Source overrides the frame source chosen from the image paths.
	Source FrameSource
	// Progress, if set, is called after each written frame.
	Progress func(done, total int)
}

// Result summarizes a finished conversion.
type Result struct {
	Dataset  string
	Dir      string
	Objects  int
	Frames   int
	Manifest manifest.Manifest
}

type run struct {
	opts     Options
	tbl      *table.Table
	proj     *features.Projection
	out      *writer.Dataset
	source   FrameSource
	remapper labels.Remapper
	bounds   *labels.Bounds
	preview  *render.PreviewRenderer
	feature  int
	done     atomic.Int64
	total    int
}

// Run converts one dataset. Nothing is retried; on error no manifest is
// written.
func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Dataset == "" {
		return nil, fmt.Errorf("dataset name is required")
	}
	if opts.Table == "" {
		return nil, fmt.Errorf("dataset %s: table path is required", opts.Dataset)
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	log := slog.With("dataset", opts.Dataset)

	cols := opts.Columns
	cols.Features = make([]string, len(opts.Features))
	for i, f := range opts.Features {
		cols.Features[i] = f.Column
	}

	log.Info("loading table", "path", opts.Table)
	tbl, err := table.Load(opts.Table, cols)
	if err != nil {
		return nil, fmt.Errorf("failed to load table: %w", err)
	}
	groups, err := tbl.Frames()
	if err != nil {
		return nil, fmt.Errorf("failed to group frames: %w", err)
	}
	proj, err := features.Project(tbl, opts.Scale)
	if err != nil {
		return nil, fmt.Errorf("failed to project features: %w", err)
	}

	out, err := writer.New(opts.OutputDir, opts.Dataset)
	if err != nil {
		return nil, err
	}
	// A previous manifest would describe artifacts this run overwrites.
	if err := out.Remove(manifest.FileName); err != nil {
		return nil, err
	}

	r := &run{
		opts:     opts,
		tbl:      tbl,
		proj:     proj,
		out:      out,
		source:   opts.Source,
		remapper: labels.Remapper{MaxLabel: opts.MaxLabel, Strict: opts.StrictLabels},
	}

	builder := manifest.NewBuilder()
	names, meta := featureNames(opts.Features)
	builder.SetFeatures(names)
	builder.SetFeatureMetadata(meta)

	log.Info("writing feature data", "objects", len(tbl.Rows), "features", len(names))
	if err := r.writeFeatureData(); err != nil {
		return nil, err
	}

	for _, g := range groups {
		builder.AddFrame(g.Time, manifest.FrameFile(g.Time))
	}

	if !opts.NoFrames {
		if err := r.writeFrames(ctx, groups); err != nil {
			return nil, err
		}
	} else {
		log.Info("skipping frames")
	}

	m := builder.Build()
	if err := out.WriteJSON(manifest.FileName, m); err != nil {
		return nil, err
	}
	log.Info("dataset written", "dir", out.Dir, "frames", len(groups), "elapsed", time.Since(start).Round(time.Millisecond))

	return &Result{
		Dataset:  opts.Dataset,
		Dir:      out.Dir,
		Objects:  len(tbl.Rows),
		Frames:   len(groups),
		Manifest: m,
	}, nil
}

func featureNames(specs []FeatureSpec) ([]string, []manifest.FeatureMetadata) {
	names := make([]string, len(specs))
	meta := make([]manifest.FeatureMetadata, len(specs))
	for i, f := range specs {
		name, units := manifest.ExtractUnits(f.Column)
		if f.Name != "" {
			name = f.Name
		}
		if f.Units != "" {
			units = f.Units
		}
		names[i] = name
		meta[i] = manifest.FeatureMetadata{Units: units}
	}
	return names, meta
}

func (r *run) writeFeatureData() error {
	p := r.proj
	if err := r.out.WriteJSON(manifest.OutliersFile, writer.Bools{Data: p.Outliers, Min: false, Max: true}); err != nil {
		return err
	}
	if err := r.out.WriteJSON(manifest.TracksFile, writer.Ints[int64]{Data: p.Tracks}); err != nil {
		return err
	}
	if err := r.out.WriteJSON(manifest.TimesFile, writer.Ints[int64]{Data: p.Times}); err != nil {
		return err
	}
	if err := r.out.WriteJSON(manifest.CentroidsFile, writer.Ints[int64]{Data: p.Centroids}); err != nil {
		return err
	}
	for i, f := range p.Features {
		doc := writer.FloatArray{Data: f.Data, Min: f.Min, Max: f.Max}
		if err := r.out.WriteJSON(manifest.FeatureFile(i), doc); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) writeFrames(ctx context.Context, groups []table.FrameGroup) error {
	if r.source == nil {
		auto, err := NewAutoSource(r.opts.Projection, r.opts.ChunkCacheSize)
		if err != nil {
			return err
		}
		defer auto.Close()
		r.source = auto
	}
	if err := r.setupPreview(); err != nil {
		return err
	}

	r.bounds = labels.NewBounds(len(r.tbl.Rows))
	r.total = len(groups)

	workers := max(r.opts.Workers, 1)
	if workers == 1 {
		for _, g := range groups {
			if err := r.processFrame(ctx, g); err != nil {
				return err
			}
		}
	} else {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(workers)
		for _, g := range groups {
			eg.Go(func() error {
				return r.processFrame(egCtx, g)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}

	return r.out.WriteJSON(manifest.BoundsFile, writer.Ints[uint16]{Data: r.bounds.Data()})
}

func (r *run) setupPreview() error {
	p := r.opts.Preview
	if p == nil {
		return nil
	}
	if len(r.proj.Features) == 0 {
		slog.Warn("preview requested but dataset has no features", "dataset", r.opts.Dataset)
		return nil
	}
	r.feature = 0
	if p.Feature != "" {
		r.feature = -1
		names, _ := featureNames(r.opts.Features)
		for i, f := range r.opts.Features {
			if f.Column == p.Feature || names[i] == p.Feature {
				r.feature = i
				break
			}
		}
		if r.feature < 0 {
			return fmt.Errorf("preview feature %q is not a configured feature", p.Feature)
		}
	}
	renderer, err := render.NewPreviewRenderer(render.Config{Colormap: p.Colormap, Outline: p.Outline})
	if err != nil {
		return err
	}
	r.preview = renderer
	return nil
}

func (r *run) processFrame(ctx context.Context, g table.FrameGroup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := strconv.FormatInt(g.Time, 10)

	img, err := r.source.Load(ctx, g.ImagePath)
	if err != nil {
		return fmt.Errorf("frame %s: failed to load %s: %w", name, filepath.Base(g.ImagePath), err)
	}
	if img, err = frame.Scale(img, r.opts.Scale); err != nil {
		return fmt.Errorf("frame %s: %w", name, err)
	}

	entries := make([]labels.Entry, len(g.Rows))
	for i, row := range g.Rows {
		entries[i] = labels.Entry{Row: row, Label: r.tbl.Rows[row].Label}
	}
	remapped, lut, err := r.remapper.Remap(name, img, entries)
	if err != nil {
		return err
	}
	if err := r.bounds.Update(name, remapped, lut); err != nil {
		return err
	}

	err = r.out.WriteStream(manifest.FrameFile(g.Time), func(w io.Writer) error {
		return codec.WritePNG(w, remapped)
	})
	if err != nil {
		return fmt.Errorf("frame %s: %w", name, err)
	}

	if r.preview != nil {
		f := r.proj.Features[r.feature]
		data, err := r.preview.Render(render.Frame{
			Labels:   remapped,
			Values:   f.Data,
			Min:      f.Min,
			Max:      f.Max,
			Outliers: r.proj.Outliers,
			Bounds:   r.bounds.Data(),
		})
		if err != nil {
			return fmt.Errorf("frame %s: failed to render preview: %w", name, err)
		}
		if err := r.out.WriteFile(fmt.Sprintf("preview_%d.png", g.Time), data); err != nil {
			return err
		}
	}

	slog.Debug("frame written", "dataset", r.opts.Dataset, "time", g.Time, "objects", len(g.Rows),
		"width", remapped.Width, "height", remapped.Height)
	if r.opts.Progress != nil {
		r.opts.Progress(int(r.done.Add(1)), r.total)
	}
	return nil
}

// RunCollection converts each dataset in order and records it in
// collection.json under root.
func RunCollection(ctx context.Context, root string, datasets []Options) ([]*Result, error) {
	results := make([]*Result, 0, len(datasets))
	for _, opts := range datasets {
		opts.OutputDir = root
		res, err := Run(ctx, opts)
		if err != nil {
			return results, fmt.Errorf("dataset %s: %w", opts.Dataset, err)
		}
		path := filepath.Join(root, manifest.CollectionFile)
		if err := manifest.UpdateCollection(path, opts.Dataset, opts.Dataset); err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
