// Package synth generates small synthetic timelapse datasets: rectangular
// "cells" drifting down the image over time, written as 16-bit label PNGs
// plus a measurement table.
package synth

import (
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/colorizer-data/colorizer/internal/data/table"
)

// Options controls the generated dataset.
type Options struct {
	Frames        int
	CellsPerFrame int
	Width         int
	Height        int
	Features      int
	Seed          uint64
}

// DefaultOptions matches the demo dataset shape.
func DefaultOptions() Options {
	return Options{Frames: 5, CellsPerFrame: 4, Width: 360, Height: 240, Features: 2, Seed: 1}
}

// TableName is the generated table file name.
const TableName = "table.csv"

// Cell is one generated object. X1 and Y1 are exclusive.
type Cell struct {
	Row    int
	Time   int
	Track  int
	Label  uint16
	X0, Y0 int
	X1, Y1 int
	CX, CY int
}

// Layout returns the cells in table order (track-major).
func Layout(o Options) []Cell {
	cellSize := o.Width / o.CellsPerFrame
	half := cellSize / 2
	cells := make([]Cell, 0, o.Frames*o.CellsPerFrame)
	for track := 0; track < o.CellsPerFrame; track++ {
		for i := 0; i < o.Frames; i++ {
			t := 0.0
			if o.Frames > 1 {
				t = float64(i) / float64(o.Frames-1)
			}
			cx := half + track*cellSize
			cy := int(float64(half) + t*float64(o.Height-cellSize))
			cells = append(cells, Cell{
				Row:   track*o.Frames + i,
				Time:  i,
				Track: track,
				Label: uint16(track + 1),
				X0:    cx - half + 2,
				Y0:    cy - half + 2,
				X1:    cx + half - 2,
				Y1:    cy + half - 2,
				CX:    cx,
				CY:    cy,
			})
		}
	}
	return cells
}

// Generate writes labels/t{n}.png and table.csv into dir and returns the
// column configuration that reads them.
func Generate(dir string, o Options) (table.Columns, error) {
	cols := table.DefaultColumns()
	if o.Frames <= 0 || o.CellsPerFrame <= 0 || o.Width <= 0 || o.Height <= 0 {
		return cols, fmt.Errorf("invalid synthetic dataset options %+v", o)
	}
	if o.Width/o.CellsPerFrame < 5 || o.Height < o.Width/o.CellsPerFrame {
		return cols, fmt.Errorf("image %dx%d too small for %d cells", o.Width, o.Height, o.CellsPerFrame)
	}
	if err := os.MkdirAll(filepath.Join(dir, "labels"), 0o755); err != nil {
		return cols, fmt.Errorf("failed to create output directory: %w", err)
	}

	cells := Layout(o)
	frames := make([]*image.Gray16, o.Frames)
	for i := range frames {
		frames[i] = image.NewGray16(image.Rect(0, 0, o.Width, o.Height))
	}
	for _, c := range cells {
		img := frames[c.Time]
		for y := c.Y0; y < c.Y1; y++ {
			for x := c.X0; x < c.X1; x++ {
				img.SetGray16(x, y, color.Gray16{Y: c.Label})
			}
		}
	}
	for i, img := range frames {
		if err := writePNG(filepath.Join(dir, labelPath(i)), img); err != nil {
			return cols, err
		}
	}

	for i := 0; i < o.Features; i++ {
		cols.Features = append(cols.Features, fmt.Sprintf("feature_%d", i))
	}
	if err := writeTable(filepath.Join(dir, TableName), cols, cells, o); err != nil {
		return cols, err
	}
	return cols, nil
}

func labelPath(i int) string {
	return filepath.ToSlash(filepath.Join("labels", fmt.Sprintf("t%d.png", i)))
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

func writeTable(path string, cols table.Columns, cells []Cell, o Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	defer f.Close()

	rng := rand.New(rand.NewPCG(o.Seed, o.Seed^0x9e3779b97f4a7c15))
	w := csv.NewWriter(f)
	header := []string{cols.Label, cols.Track, cols.Time, cols.CentroidX, cols.CentroidY, cols.Outlier, cols.ImagePath}
	header = append(header, cols.Features...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, c := range cells {
		rec := []string{
			strconv.Itoa(int(c.Label)),
			strconv.Itoa(c.Track),
			strconv.Itoa(c.Time),
			strconv.Itoa(c.CX),
			strconv.Itoa(c.CY),
			"False",
			labelPath(c.Time),
		}
		for range cols.Features {
			rec = append(rec, strconv.FormatFloat(10*rng.Float64(), 'f', -1, 64))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return f.Close()
}
