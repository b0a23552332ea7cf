// Package table loads per-object measurement tables (CSV or Arrow IPC) and
// groups their rows into timepoints.
package table

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
)

// Columns names the table columns the converter reads. Track and Outlier
// are optional; an empty name means the column is absent.
type Columns struct {
	Label     string   `yaml:"label" toml:"label"`
	Track     string   `yaml:"track" toml:"track"`
	Time      string   `yaml:"time" toml:"time"`
	CentroidX string   `yaml:"centroid_x" toml:"centroid_x"`
	CentroidY string   `yaml:"centroid_y" toml:"centroid_y"`
	Outlier   string   `yaml:"outlier" toml:"outlier"`
	ImagePath string   `yaml:"image_path" toml:"image_path"`
	Features  []string `yaml:"features" toml:"features"`
}

// DefaultColumns returns the nucmorph column naming.
func DefaultColumns() Columns {
	return Columns{
		Label:     "label_img",
		Track:     "track_id",
		Time:      "index_sequence",
		CentroidX: "centroid_x",
		CentroidY: "centroid_y",
		Outlier:   "is_outlier",
		ImagePath: "seg_full_zstack_path",
	}
}

// Row is one segmented object at one timepoint.
type Row struct {
	Index     int
	Track     int64
	Time      int64
	Label     uint32
	CentroidX float64
	CentroidY float64
	Outlier   bool
	Features  []float64
	ImagePath string
}

// Table holds rows in file order.
type Table struct {
	Path         string
	Rows         []Row
	FeatureNames []string
	HasTracks    bool
	HasOutliers  bool
}

// FrameGroup is the set of rows that share a timepoint.
type FrameGroup struct {
	Time      int64
	ImagePath string
	Rows      []int
}

// Load reads a table, choosing the parser from the file extension.
func Load(path string, cols Columns) (*Table, error) {
	var (
		cells cellSource
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		cells, err = openCSV(path)
	case ".arrow", ".feather", ".ipc":
		cells, err = openArrow(path)
	default:
		return nil, fmt.Errorf("unsupported table format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	defer cells.Close()

	t, err := build(cells, cols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t.Path = path
	t.resolveImagePaths(filepath.Dir(path))
	return t, nil
}

// cellSource abstracts column access over the supported file formats.
type cellSource interface {
	NumRows() int
	Column(name string) (int, bool)
	Float(col, row int) (float64, error)
	Text(col, row int) (string, error)
	Bool(col, row int) (bool, error)
	Close()
}

func build(cells cellSource, cols Columns) (*Table, error) {
	required := func(name, role string) (int, error) {
		if name == "" {
			return 0, fmt.Errorf("no %s column configured", role)
		}
		i, ok := cells.Column(name)
		if !ok {
			return 0, fmt.Errorf("missing %s column %q", role, name)
		}
		return i, nil
	}

	labelCol, err := required(cols.Label, "label")
	if err != nil {
		return nil, err
	}
	timeCol, err := required(cols.Time, "time")
	if err != nil {
		return nil, err
	}
	cxCol, err := required(cols.CentroidX, "centroid x")
	if err != nil {
		return nil, err
	}
	cyCol, err := required(cols.CentroidY, "centroid y")
	if err != nil {
		return nil, err
	}

	imgCol := -1
	if cols.ImagePath != "" {
		if imgCol, err = required(cols.ImagePath, "image path"); err != nil {
			return nil, err
		}
	}
	trackCol, hasTracks := optional(cells, cols.Track)
	outlierCol, hasOutliers := optional(cells, cols.Outlier)

	featCols := make([]int, len(cols.Features))
	for i, name := range cols.Features {
		if featCols[i], err = required(name, "feature"); err != nil {
			return nil, err
		}
	}

	n := cells.NumRows()
	t := &Table{
		Rows:         make([]Row, n),
		FeatureNames: append([]string(nil), cols.Features...),
		HasTracks:    hasTracks,
		HasOutliers:  hasOutliers,
	}
	for i := 0; i < n; i++ {
		r := &t.Rows[i]
		r.Index = i

		label, err := integer(cells, labelCol, i, cols.Label)
		if err != nil {
			return nil, err
		}
		if label < 0 || label > math.MaxUint32 {
			return nil, fmt.Errorf("row %d: label %d out of range", i, label)
		}
		r.Label = uint32(label)

		if r.Time, err = integer(cells, timeCol, i, cols.Time); err != nil {
			return nil, err
		}
		if hasTracks {
			if r.Track, err = integer(cells, trackCol, i, cols.Track); err != nil {
				return nil, err
			}
		} else {
			r.Track = int64(i)
		}
		if r.CentroidX, err = cells.Float(cxCol, i); err != nil {
			return nil, cellError(i, cols.CentroidX, err)
		}
		if r.CentroidY, err = cells.Float(cyCol, i); err != nil {
			return nil, cellError(i, cols.CentroidY, err)
		}
		if hasOutliers {
			if r.Outlier, err = cells.Bool(outlierCol, i); err != nil {
				return nil, cellError(i, cols.Outlier, err)
			}
		}
		if imgCol >= 0 {
			if r.ImagePath, err = cells.Text(imgCol, i); err != nil {
				return nil, cellError(i, cols.ImagePath, err)
			}
		}

		r.Features = make([]float64, len(featCols))
		for j, c := range featCols {
			if r.Features[j], err = cells.Float(c, i); err != nil {
				return nil, cellError(i, cols.Features[j], err)
			}
		}
	}
	return t, nil
}

func optional(cells cellSource, name string) (int, bool) {
	if name == "" {
		return -1, false
	}
	return cells.Column(name)
}

// integer reads an integral cell; float encodings such as "12.0" are
// accepted as long as they carry no fraction.
func integer(cells cellSource, col, row int, name string) (int64, error) {
	v, err := cells.Float(col, row)
	if err != nil {
		return 0, cellError(row, name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, cellError(row, name, fmt.Errorf("%v is not an integer", v))
	}
	return int64(v), nil
}

func cellError(row int, col string, err error) error {
	return fmt.Errorf("row %d, column %q: %w", row, col, err)
}

func (t *Table) resolveImagePaths(dir string) {
	for i := range t.Rows {
		p := strings.Trim(strings.TrimSpace(t.Rows[i].ImagePath), `"'`)
		if p != "" && !filepath.IsAbs(p) && !strings.Contains(p, "://") {
			p = filepath.Join(dir, p)
		}
		t.Rows[i].ImagePath = p
	}
}

// ErrImagePathConflict is returned when rows of one timepoint reference
// different label images.
var ErrImagePathConflict = errors.New("rows of one time reference different images")

// Frames groups rows by time in ascending order. Every row of a frame must
// name the same image path.
func (t *Table) Frames() ([]FrameGroup, error) {
	byTime := make(map[int64]*FrameGroup)
	var times []int64
	for _, r := range t.Rows {
		g, ok := byTime[r.Time]
		if !ok {
			g = &FrameGroup{Time: r.Time, ImagePath: r.ImagePath}
			byTime[r.Time] = g
			times = append(times, r.Time)
		} else if r.ImagePath != g.ImagePath {
			return nil, fmt.Errorf("time %d, row %d: %w: %q and %q",
				r.Time, r.Index, ErrImagePathConflict, g.ImagePath, r.ImagePath)
		}
		g.Rows = append(g.Rows, r.Index)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	out := make([]FrameGroup, 0, len(times))
	for _, tm := range times {
		out = append(out, *byTime[tm])
	}
	return out, nil
}
