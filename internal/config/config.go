// Package config handles configuration loading for the converter and the
// dataset server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/colorizer-data/colorizer/internal/data/table"
	"github.com/colorizer-data/colorizer/internal/frame"
	"github.com/colorizer-data/colorizer/internal/labels"
	"github.com/colorizer-data/colorizer/internal/logging"
	"github.com/colorizer-data/colorizer/internal/pipeline"
)

// Config represents the full configuration.
type Config struct {
	OutputDir string         `yaml:"output_dir" toml:"output_dir"`
	Convert   ConvertConfig  `yaml:"convert" toml:"convert"`
	Server    ServerConfig   `yaml:"server" toml:"server"`
	Cache     CacheConfig    `yaml:"cache" toml:"cache"`
	Jobs      JobsConfig     `yaml:"jobs" toml:"jobs"`
	Log       logging.Config `yaml:"log" toml:"log"`
	Datasets  DatasetsConfig `yaml:"datasets" toml:"datasets"`
}

// ConvertConfig holds conversion settings shared by every dataset.
type ConvertConfig struct {
	Scale          float64        `yaml:"scale" toml:"scale"`
	Workers        int            `yaml:"workers" toml:"workers"`
	Projection     string         `yaml:"projection" toml:"projection"`
	MaxLabel       uint32         `yaml:"max_label" toml:"max_label"`
	StrictLabels   bool           `yaml:"strict_labels" toml:"strict_labels"`
	NoFrames       bool           `yaml:"noframes" toml:"noframes"`
	ChunkCacheSize int            `yaml:"chunk_cache_size" toml:"chunk_cache_size"`
	Preview        *PreviewConfig `yaml:"preview" toml:"preview"`
}

// PreviewConfig enables preview images.
type PreviewConfig struct {
	Feature  string `yaml:"feature" toml:"feature"`
	Colormap string `yaml:"colormap" toml:"colormap"`
	Outline  bool   `yaml:"outline" toml:"outline"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port" toml:"port"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

// CacheConfig contains caching settings for served artifacts.
type CacheConfig struct {
	ArtifactSizeMB     int `yaml:"artifact_size_mb" toml:"artifact_size_mb"`
	ArtifactTTLMinutes int `yaml:"artifact_ttl_minutes" toml:"artifact_ttl_minutes"`
	MaxEntryKB         int `yaml:"max_entry_kb" toml:"max_entry_kb"`
	ListingCacheSize   int `yaml:"listing_cache_size" toml:"listing_cache_size"`
}

// JobsConfig contains conversion job queue settings.
type JobsConfig struct {
	DBPath        string `yaml:"db_path" toml:"db_path"`
	MaxConcurrent int    `yaml:"max_concurrent" toml:"max_concurrent"`
	RetentionDays int    `yaml:"retention_days" toml:"retention_days"`
}

// DatasetConfig describes one dataset to convert. Scale and Projection
// override the convert section when set.
type DatasetConfig struct {
	Table      string          `yaml:"table" toml:"table"`
	Columns    table.Columns   `yaml:"columns" toml:"columns"`
	Features   []FeatureConfig `yaml:"features" toml:"features"`
	Scale      float64         `yaml:"scale" toml:"scale"`
	Projection string          `yaml:"projection" toml:"projection"`
}

// FeatureConfig selects a feature column. A bare string in YAML is taken as
// the column name.
type FeatureConfig struct {
	Column string `yaml:"column" toml:"column"`
	Name   string `yaml:"name" toml:"name"`
	Units  string `yaml:"units" toml:"units"`
}

// UnmarshalYAML accepts either a column name or a mapping.
func (f *FeatureConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Column = value.Value
		return nil
	}
	type plain FeatureConfig
	return value.Decode((*plain)(f))
}

// UnmarshalTOML accepts either a column name or a table.
func (f *FeatureConfig) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		f.Column = v
	case map[string]any:
		f.Column, _ = v["column"].(string)
		f.Name, _ = v["name"].(string)
		f.Units, _ = v["units"].(string)
	default:
		return fmt.Errorf("feature: unexpected value %v", v)
	}
	return nil
}

// DatasetsConfig is the set of configured datasets in file order.
type DatasetsConfig struct {
	Datasets map[string]DatasetConfig
	order    []string
}

// DatasetIDs returns dataset names in file order.
func (d DatasetsConfig) DatasetIDs() []string {
	return append([]string(nil), d.order...)
}

// Get returns the named dataset.
func (d DatasetsConfig) Get(name string) (DatasetConfig, bool) {
	ds, ok := d.Datasets[name]
	return ds, ok
}

// Add appends or replaces a dataset.
func (d *DatasetsConfig) Add(name string, ds DatasetConfig) {
	if d.Datasets == nil {
		d.Datasets = make(map[string]DatasetConfig)
	}
	if _, ok := d.Datasets[name]; !ok {
		d.order = append(d.order, name)
	}
	d.Datasets[name] = ds
}

// UnmarshalYAML decodes the datasets mapping, keeping key order.
func (d *DatasetsConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("datasets: expected a mapping, got %v", value.Tag)
	}
	d.Datasets = make(map[string]DatasetConfig, len(value.Content)/2)
	d.order = d.order[:0]
	for i := 0; i+1 < len(value.Content); i += 2 {
		name := value.Content[i].Value
		var ds DatasetConfig
		if err := value.Content[i+1].Decode(&ds); err != nil {
			return fmt.Errorf("dataset %s: %w", name, err)
		}
		if _, dup := d.Datasets[name]; !dup {
			d.order = append(d.order, name)
		}
		d.Datasets[name] = ds
	}
	return nil
}

// UnmarshalTOML decodes the [datasets.<name>] tables. Order is restored
// from the decoder metadata in loadTOML.
func (d *DatasetsConfig) UnmarshalTOML(v any) error {
	tables, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("datasets: expected a table")
	}
	d.Datasets = make(map[string]DatasetConfig, len(tables))
	for name, raw := range tables {
		// Round-trip through the encoder to reuse the struct tags.
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
			return fmt.Errorf("dataset %s: %w", name, err)
		}
		var ds DatasetConfig
		if _, err := toml.Decode(buf.String(), &ds); err != nil {
			return fmt.Errorf("dataset %s: %w", name, err)
		}
		d.Datasets[name] = ds
	}
	return nil
}

// Load reads configuration from a YAML file, or TOML when the file name
// ends in .toml. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := loadTOML(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Table paths are relative to the config file.
	base := filepath.Dir(path)
	for name, ds := range cfg.Datasets.Datasets {
		if ds.Table != "" && !filepath.IsAbs(ds.Table) {
			ds.Table = filepath.Join(base, ds.Table)
			cfg.Datasets.Datasets[name] = ds
		}
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func loadTOML(data string, cfg *Config) error {
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		if len(key) == 2 && key[0] == "datasets" && !seen[key[1]] {
			seen[key[1]] = true
			cfg.Datasets.order = append(cfg.Datasets.order, key[1])
		}
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputDir: "./output",
		Convert: ConvertConfig{
			Scale:          1,
			Workers:        1,
			Projection:     string(frame.ProjectMax),
			MaxLabel:       labels.DefaultMaxLabel,
			ChunkCacheSize: 64,
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Cache: CacheConfig{
			ArtifactSizeMB:     256,
			ArtifactTTLMinutes: 10,
			MaxEntryKB:         4096,
			ListingCacheSize:   128,
		},
		Jobs: JobsConfig{
			DBPath:        "./data/jobs.db",
			MaxConcurrent: 1,
			RetentionDays: 7,
		},
		Log: logging.Config{
			Level:   "info",
			MaxSize: 10,
			MaxAge:  30,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.OutputDir == "" {
		cfg.OutputDir = defaults.OutputDir
	}
	if cfg.Convert.Scale == 0 {
		cfg.Convert.Scale = defaults.Convert.Scale
	}
	if cfg.Convert.Workers == 0 {
		cfg.Convert.Workers = defaults.Convert.Workers
	}
	if cfg.Convert.Projection == "" {
		cfg.Convert.Projection = defaults.Convert.Projection
	}
	if cfg.Convert.MaxLabel == 0 {
		cfg.Convert.MaxLabel = defaults.Convert.MaxLabel
	}
	if cfg.Convert.ChunkCacheSize == 0 {
		cfg.Convert.ChunkCacheSize = defaults.Convert.ChunkCacheSize
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Cache.ArtifactSizeMB == 0 {
		cfg.Cache.ArtifactSizeMB = defaults.Cache.ArtifactSizeMB
	}
	if cfg.Cache.ArtifactTTLMinutes == 0 {
		cfg.Cache.ArtifactTTLMinutes = defaults.Cache.ArtifactTTLMinutes
	}
	if cfg.Cache.MaxEntryKB == 0 {
		cfg.Cache.MaxEntryKB = defaults.Cache.MaxEntryKB
	}
	if cfg.Cache.ListingCacheSize == 0 {
		cfg.Cache.ListingCacheSize = defaults.Cache.ListingCacheSize
	}
	if cfg.Jobs.DBPath == "" {
		cfg.Jobs.DBPath = defaults.Jobs.DBPath
	}
	if cfg.Jobs.MaxConcurrent == 0 {
		cfg.Jobs.MaxConcurrent = defaults.Jobs.MaxConcurrent
	}
	if cfg.Jobs.RetentionDays == 0 {
		cfg.Jobs.RetentionDays = defaults.Jobs.RetentionDays
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.MaxSize == 0 {
		cfg.Log.MaxSize = defaults.Log.MaxSize
	}
	if cfg.Log.MaxAge == 0 {
		cfg.Log.MaxAge = defaults.Log.MaxAge
	}
	if cfg.Datasets.Datasets == nil {
		cfg.Datasets.Datasets = map[string]DatasetConfig{}
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Convert.Scale < 0 {
		return fmt.Errorf("convert.scale must be positive, got %g", c.Convert.Scale)
	}
	if _, err := frame.ParseProjection(c.Convert.Projection); err != nil {
		return fmt.Errorf("convert.projection: %w", err)
	}
	for _, name := range c.Datasets.order {
		ds := c.Datasets.Datasets[name]
		if ds.Table == "" {
			return fmt.Errorf("dataset %s: table is required", name)
		}
		if _, err := frame.ParseProjection(ds.Projection); ds.Projection != "" && err != nil {
			return fmt.Errorf("dataset %s: %w", name, err)
		}
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return fmt.Errorf("dataset %s: name must be a single path element", name)
		}
	}
	return nil
}

// columns merges the configured column names over the defaults.
func (ds DatasetConfig) columns() table.Columns {
	cols := table.DefaultColumns()
	c := ds.Columns
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&cols.Label, c.Label},
		{&cols.Track, c.Track},
		{&cols.Time, c.Time},
		{&cols.CentroidX, c.CentroidX},
		{&cols.CentroidY, c.CentroidY},
		{&cols.Outlier, c.Outlier},
		{&cols.ImagePath, c.ImagePath},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	return cols
}

// PipelineOptions builds the conversion options for a configured dataset.
func (c *Config) PipelineOptions(name string) (pipeline.Options, error) {
	ds, ok := c.Datasets.Get(name)
	if !ok {
		return pipeline.Options{}, fmt.Errorf("dataset %q is not configured", name)
	}

	projection := c.Convert.Projection
	if ds.Projection != "" {
		projection = ds.Projection
	}
	proj, err := frame.ParseProjection(projection)
	if err != nil {
		return pipeline.Options{}, err
	}
	scale := c.Convert.Scale
	if ds.Scale != 0 {
		scale = ds.Scale
	}

	opts := pipeline.Options{
		Dataset:        name,
		OutputDir:      c.OutputDir,
		Table:          ds.Table,
		Columns:        ds.columns(),
		Projection:     proj,
		Scale:          scale,
		NoFrames:       c.Convert.NoFrames,
		Workers:        c.Convert.Workers,
		MaxLabel:       c.Convert.MaxLabel,
		StrictLabels:   c.Convert.StrictLabels,
		ChunkCacheSize: c.Convert.ChunkCacheSize,
	}
	for _, f := range ds.Features {
		opts.Features = append(opts.Features, pipeline.FeatureSpec{Column: f.Column, Name: f.Name, Units: f.Units})
	}
	if p := c.Convert.Preview; p != nil {
		opts.Preview = &pipeline.PreviewOptions{Feature: p.Feature, Colormap: p.Colormap, Outline: p.Outline}
	}
	return opts, nil
}
