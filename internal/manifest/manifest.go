// Package manifest assembles the dataset manifest.json and maintains the
// collection.json that lists datasets for the viewer.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Fixed artifact names.
const (
	FileName       = "manifest.json"
	OutliersFile   = "outliers.json"
	TracksFile     = "tracks.json"
	TimesFile      = "times.json"
	CentroidsFile  = "centroids.json"
	BoundsFile     = "bounds.json"
	CollectionFile = "collection.json"
)

// FeatureFile returns the artifact name of feature i.
func FeatureFile(i int) string {
	return fmt.Sprintf("feature_%d.json", i)
}

// FrameFile returns the artifact name of the frame at time t.
func FrameFile(t int64) string {
	return fmt.Sprintf("frame_%d.png", t)
}

// FeatureMetadata describes one feature.
type FeatureMetadata struct {
	Units string `json:"units"`
}

// Pair is one entry of an ordered JSON object.
type Pair[V any] struct {
	Key   string
	Value V
}

// Ordered is a JSON object that keeps insertion order.
type Ordered[V any] []Pair[V]

// MarshalJSON implements json.Marshaler.
func (o Ordered[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping the document order.
func (o *Ordered[V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object")
	}
	*o = (*o)[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v V
		if err := dec.Decode(&v); err != nil {
			return err
		}
		*o = append(*o, Pair[V]{Key: key, Value: v})
	}
	_, err = dec.Token()
	return err
}

// Get returns the value stored under key.
func (o Ordered[V]) Get(key string) (V, bool) {
	for _, p := range o {
		if p.Key == key {
			return p.Value, true
		}
	}
	var zero V
	return zero, false
}

// Manifest is the manifest.json document. Field order is the on-disk order.
type Manifest struct {
	Frames          []string                 `json:"frames"`
	Features        Ordered[string]          `json:"features"`
	Outliers        string                   `json:"outliers"`
	Tracks          string                   `json:"tracks"`
	Times           string                   `json:"times"`
	Centroids       string                   `json:"centroids"`
	Bounds          string                   `json:"bounds"`
	FeatureMetadata Ordered[FeatureMetadata] `json:"featureMetadata,omitempty"`
}

type frameRef struct {
	time int64
	file string
}

// Builder collects manifest entries. AddFrame may be called concurrently
// and in any order; frames are listed by ascending time.
type Builder struct {
	mu       sync.Mutex
	frames   []frameRef
	features []string
	metadata []FeatureMetadata
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddFrame records the frame file for time t.
func (b *Builder) AddFrame(t int64, file string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frameRef{time: t, file: file})
}

// SetFeatures records the feature names in output order. Feature i is
// stored in FeatureFile(i).
func (b *Builder) SetFeatures(names []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.features = append([]string(nil), names...)
}

// SetFeatureMetadata records per-feature metadata aligned with the names
// passed to SetFeatures.
func (b *Builder) SetFeatureMetadata(meta []FeatureMetadata) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metadata = append([]FeatureMetadata(nil), meta...)
}

// Build returns the manifest document.
func (b *Builder) Build() Manifest {
	b.mu.Lock()
	defer b.mu.Unlock()

	frames := append([]frameRef(nil), b.frames...)
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].time < frames[j].time })

	m := Manifest{
		Frames:    make([]string, len(frames)),
		Features:  make(Ordered[string], 0, len(b.features)),
		Outliers:  OutliersFile,
		Tracks:    TracksFile,
		Times:     TimesFile,
		Centroids: CentroidsFile,
		Bounds:    BoundsFile,
	}
	for i, f := range frames {
		m.Frames[i] = f.file
	}
	for i, name := range b.features {
		m.Features = append(m.Features, Pair[string]{Key: name, Value: FeatureFile(i)})
	}

	if hasUnits(b.metadata) {
		if len(b.metadata) != len(b.features) {
			slog.Warn("feature metadata length does not match number of features, skipping metadata",
				"metadata", len(b.metadata), "features", len(b.features))
		} else {
			for i, name := range b.features {
				m.FeatureMetadata = append(m.FeatureMetadata, Pair[FeatureMetadata]{Key: name, Value: b.metadata[i]})
			}
		}
	}
	return m
}

func hasUnits(meta []FeatureMetadata) bool {
	for _, m := range meta {
		if m.Units != "" {
			return true
		}
	}
	return false
}

var unitsPattern = regexp.MustCompile(`\((.+)\)$`)

// ExtractUnits splits a trailing "(units)" suffix from a feature name:
// "Volume (µm³)" yields ("Volume", "µm³"). Names without a suffix are
// returned unchanged with empty units.
func ExtractUnits(name string) (string, string) {
	loc := unitsPattern.FindStringSubmatchIndex(name)
	if loc == nil {
		return name, ""
	}
	return strings.TrimSpace(name[:loc[0]]), name[loc[2]:loc[3]]
}
