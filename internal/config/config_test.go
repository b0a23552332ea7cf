package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/colorizer-data/colorizer/internal/frame"
	"github.com/colorizer-data/colorizer/internal/labels"
)

func TestLoad_MultiDatasetFormat(t *testing.T) {
	content := `
output_dir: /out
datasets:
  nucmorph:
    table: tables/nucmorph.csv
    features:
      - "Volume (µm³)"
      - column: height
        name: Height
        units: µm
  emt:
    table: /data/emt.feather
    projection: min
    scale: 0.5
    columns:
      label: label
      time: T
`
	cfg := loadFromString(t, "config.yaml", content)

	ids := cfg.Datasets.DatasetIDs()
	if len(ids) != 2 || ids[0] != "nucmorph" || ids[1] != "emt" {
		t.Fatalf("unexpected dataset order: %v", ids)
	}

	nm, ok := cfg.Datasets.Get("nucmorph")
	if !ok {
		t.Fatal("expected 'nucmorph' dataset")
	}
	if !filepath.IsAbs(nm.Table) || filepath.Base(nm.Table) != "nucmorph.csv" {
		t.Errorf("table path not resolved against config dir: %s", nm.Table)
	}
	if len(nm.Features) != 2 || nm.Features[0].Column != "Volume (µm³)" || nm.Features[1].Units != "µm" {
		t.Errorf("unexpected features: %+v", nm.Features)
	}

	opts, err := cfg.PipelineOptions("emt")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Projection != frame.ProjectMinNonzero || opts.Scale != 0.5 {
		t.Errorf("dataset overrides not applied: %+v", opts)
	}
	if opts.Columns.Label != "label" || opts.Columns.Time != "T" || opts.Columns.CentroidX != "centroid_x" {
		t.Errorf("columns not merged over defaults: %+v", opts.Columns)
	}
	if opts.OutputDir != "/out" || opts.Dataset != "emt" {
		t.Errorf("unexpected options: %+v", opts)
	}
}

func TestLoad_TOML(t *testing.T) {
	content := `
output_dir = "/srv/datasets"

[convert]
workers = 4
strict_labels = true

[datasets.b]
table = "/data/b.csv"
features = ["area"]

[datasets.a]
table = "/data/a.csv"

[[datasets.a.features]]
column = "volume"
units = "µm³"
`
	cfg := loadFromString(t, "config.toml", content)

	ids := cfg.Datasets.DatasetIDs()
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Fatalf("unexpected dataset order: %v", ids)
	}
	if cfg.Convert.Workers != 4 || !cfg.Convert.StrictLabels {
		t.Errorf("convert section not decoded: %+v", cfg.Convert)
	}
	a, _ := cfg.Datasets.Get("a")
	if len(a.Features) != 1 || a.Features[0].Column != "volume" || a.Features[0].Units != "µm³" {
		t.Errorf("unexpected features for a: %+v", a.Features)
	}
	b, _ := cfg.Datasets.Get("b")
	if len(b.Features) != 1 || b.Features[0].Column != "area" {
		t.Errorf("unexpected features for b: %+v", b.Features)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
datasets:
  test:
    table: /test/table.csv
`
	cfg := loadFromString(t, "config.yaml", content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Convert.Scale != 1 || cfg.Convert.Workers != 1 {
		t.Errorf("unexpected convert defaults: %+v", cfg.Convert)
	}
	if cfg.Convert.MaxLabel != labels.DefaultMaxLabel {
		t.Errorf("expected default max label, got %d", cfg.Convert.MaxLabel)
	}
	if cfg.Jobs.RetentionDays != 7 || cfg.Cache.ArtifactSizeMB != 256 {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Jobs, cfg.Cache)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Datasets.DatasetIDs()) != 0 || cfg.OutputDir == "" {
		t.Errorf("unexpected default config: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"noTable":        "datasets:\n  a:\n    scale: 2\n",
		"badProjection":  "convert:\n  projection: mean\n",
		"nestedName":     "datasets:\n  a/b:\n    table: t.csv\n",
		"datasetsAsList": "datasets:\n  - a\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPipelineOptions_UnknownDataset(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := cfg.PipelineOptions("missing"); err == nil {
		t.Fatal("expected error for unknown dataset")
	}
}

func loadFromString(t *testing.T, name, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
