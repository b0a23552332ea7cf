// Package features projects a measurement table into the per-object arrays
// the viewer loads: features with extrema, tracks, times, centroids and
// outlier flags. Every array is indexed by table row.
package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/colorizer-data/colorizer/internal/data/table"
)

// Feature is one numeric column with its extrema.
type Feature struct {
	Name  string
	Units string
	Data  []float64
	Min   float64
	Max   float64
}

// Projection holds the row-aligned arrays of a dataset.
type Projection struct {
	Outliers  []bool
	Tracks    []int64
	Times     []int64
	Centroids []int64 // interleaved x, y
	Features  []Feature
}

// Len returns the number of objects.
func (p *Projection) Len() int { return len(p.Times) }

// Project builds the row-aligned arrays. Centroids are multiplied by scale
// and truncated toward zero.
func Project(tbl *table.Table, scale float64) (*Projection, error) {
	if scale == 0 {
		scale = 1
	}
	n := len(tbl.Rows)
	p := &Projection{
		Outliers:  make([]bool, n),
		Tracks:    make([]int64, n),
		Times:     make([]int64, n),
		Centroids: make([]int64, 2*n),
		Features:  make([]Feature, len(tbl.FeatureNames)),
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, r := range tbl.Rows {
		p.Outliers[i] = r.Outlier
		p.Tracks[i] = r.Track
		p.Times[i] = r.Time
		xs[i] = r.CentroidX
		ys[i] = r.CentroidY
	}
	floats.Scale(scale, xs)
	floats.Scale(scale, ys)
	for i := range xs {
		if !finite(xs[i]) || !finite(ys[i]) {
			return nil, fmt.Errorf("row %d: centroid (%v, %v) is not finite", i, tbl.Rows[i].CentroidX, tbl.Rows[i].CentroidY)
		}
		p.Centroids[2*i] = int64(xs[i])
		p.Centroids[2*i+1] = int64(ys[i])
	}

	for j, name := range tbl.FeatureNames {
		data := make([]float64, n)
		for i, r := range tbl.Rows {
			data[i] = r.Features[j]
		}
		lo, hi := Extrema(data)
		p.Features[j] = Feature{Name: name, Data: data, Min: lo, Max: hi}
	}
	return p, nil
}

// Extrema returns the minimum and maximum of the finite values in data.
// Both are NaN when there are none.
func Extrema(data []float64) (lo, hi float64) {
	vals := make([]float64, 0, len(data))
	for _, v := range data {
		if finite(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	return floats.Min(vals), floats.Max(vals)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
