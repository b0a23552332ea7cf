package synth

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/colorizer-data/colorizer/internal/data/table"
)

func TestLayout(t *testing.T) {
	o := DefaultOptions()
	cells := Layout(o)
	if len(cells) != 20 {
		t.Fatalf("cells = %d, want 20", len(cells))
	}
	first := cells[0]
	if first.X0 != 2 || first.Y0 != 2 || first.X1 != 88 || first.Y1 != 88 || first.CX != 45 || first.CY != 45 {
		t.Fatalf("first cell = %+v", first)
	}
	last := cells[len(cells)-1]
	if last.Track != 3 || last.Time != 4 || last.CY != 195 || last.Row != 19 {
		t.Fatalf("last cell = %+v", last)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	o := DefaultOptions()
	o.Frames = 3
	a, b := t.TempDir(), t.TempDir()
	if _, err := Generate(a, o); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	cols, err := Generate(b, o)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	ta, _ := os.ReadFile(filepath.Join(a, TableName))
	tb, _ := os.ReadFile(filepath.Join(b, TableName))
	if !bytes.Equal(ta, tb) {
		t.Fatal("tables differ for the same seed")
	}

	tbl, err := table.Load(filepath.Join(b, TableName), cols)
	if err != nil {
		t.Fatalf("table.Load: %v", err)
	}
	if len(tbl.Rows) != 12 || len(tbl.FeatureNames) != 2 {
		t.Fatalf("rows = %d features = %d", len(tbl.Rows), len(tbl.FeatureNames))
	}
	frames, err := tbl.Frames()
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d", len(frames))
	}
	if _, err := os.Stat(frames[2].ImagePath); err != nil {
		t.Fatalf("label image missing: %v", err)
	}
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	o := DefaultOptions()
	o.CellsPerFrame = 0
	if _, err := Generate(t.TempDir(), o); err == nil {
		t.Fatal("expected error")
	}
}
