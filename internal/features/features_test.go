package features

import (
	"math"
	"testing"

	"github.com/colorizer-data/colorizer/internal/data/table"
)

func TestExtremaIgnoresNaN(t *testing.T) {
	data := []float64{1.0, math.NaN(), 3.0}
	lo, hi := Extrema(data)
	if lo != 1 || hi != 3 {
		t.Fatalf("Extrema = (%v, %v), want (1, 3)", lo, hi)
	}
	if data[0] != 1 || !math.IsNaN(data[1]) || data[2] != 3 {
		t.Fatalf("data modified: %v", data)
	}
}

func TestExtremaAllMissing(t *testing.T) {
	for _, data := range [][]float64{nil, {math.NaN(), math.Inf(1)}} {
		lo, hi := Extrema(data)
		if !math.IsNaN(lo) || !math.IsNaN(hi) {
			t.Fatalf("Extrema(%v) = (%v, %v), want NaN", data, lo, hi)
		}
	}
}

func testTable() *table.Table {
	return &table.Table{
		FeatureNames: []string{"volume", "empty"},
		HasTracks:    true,
		Rows: []table.Row{
			{Index: 0, Track: 5, Time: 0, Label: 1, CentroidX: 10.9, CentroidY: 3.2, Features: []float64{1, math.NaN()}},
			{Index: 1, Track: 6, Time: 0, Label: 2, CentroidX: 7, CentroidY: 8, Outlier: true, Features: []float64{math.NaN(), math.NaN()}},
			{Index: 2, Track: 5, Time: 1, Label: 1, CentroidX: 11.4, CentroidY: 3.9, Features: []float64{3, math.NaN()}},
		},
	}
}

func TestProjectLengths(t *testing.T) {
	p, err := Project(testTable(), 1)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	n := 3
	if len(p.Outliers) != n || len(p.Tracks) != n || len(p.Times) != n || len(p.Centroids) != 2*n {
		t.Fatalf("array lengths: outliers %d tracks %d times %d centroids %d",
			len(p.Outliers), len(p.Tracks), len(p.Times), len(p.Centroids))
	}
	for _, f := range p.Features {
		if len(f.Data) != n {
			t.Fatalf("feature %s has %d values, want %d", f.Name, len(f.Data), n)
		}
	}
	if p.Features[0].Min != 1 || p.Features[0].Max != 3 {
		t.Fatalf("volume extrema = (%v, %v)", p.Features[0].Min, p.Features[0].Max)
	}
	if !math.IsNaN(p.Features[1].Min) {
		t.Fatalf("all-NaN feature min = %v", p.Features[1].Min)
	}
	if !p.Outliers[1] || p.Outliers[0] {
		t.Fatalf("outliers = %v", p.Outliers)
	}
	if p.Tracks[2] != 5 || p.Times[2] != 1 {
		t.Fatalf("row 2 track/time = %d/%d", p.Tracks[2], p.Times[2])
	}
}

func TestProjectCentroidScaling(t *testing.T) {
	p, err := Project(testTable(), 0.5)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	want := []int64{5, 1, 3, 4, 5, 1}
	for i := range want {
		if p.Centroids[i] != want[i] {
			t.Fatalf("centroids = %v, want %v", p.Centroids, want)
		}
	}
}

func TestProjectRejectsNonFiniteCentroid(t *testing.T) {
	tbl := testTable()
	tbl.Rows[1].CentroidX = math.NaN()
	if _, err := Project(tbl, 1); err == nil {
		t.Fatal("expected error for NaN centroid")
	}
}
