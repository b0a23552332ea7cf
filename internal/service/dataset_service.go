// Package service provides business logic for the dataset server.
package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/colorizer-data/colorizer/internal/cache"
	"github.com/colorizer-data/colorizer/internal/manifest"
)

var (
	// ErrNotFound is returned for datasets or files that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPath is returned for names that would leave the output root.
	ErrInvalidPath = errors.New("invalid path")
)

const collectionKey = "collection"

// DatasetServiceConfig contains dataset service configuration.
type DatasetServiceConfig struct {
	Root  string
	Cache *cache.Manager
}

// DatasetService serves converted datasets from the output root.
type DatasetService struct {
	root  string
	cache *cache.Manager
}

// NewDatasetService creates a new dataset service.
func NewDatasetService(cfg DatasetServiceConfig) *DatasetService {
	return &DatasetService{root: cfg.Root, cache: cfg.Cache}
}

// Root returns the output root directory.
func (s *DatasetService) Root() string {
	return s.root
}

// CollectionJSON returns collection.json, or an empty list when no dataset
// has been converted yet.
func (s *DatasetService) CollectionJSON() ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.GetListing(collectionKey); ok {
			return data, nil
		}
	}
	data, err := os.ReadFile(filepath.Join(s.root, manifest.CollectionFile))
	if errors.Is(err, fs.ErrNotExist) {
		data = []byte("[]")
	} else if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetListing(collectionKey, data)
	}
	return data, nil
}

// Converted returns the datasets recorded in collection.json.
func (s *DatasetService) Converted() ([]manifest.CollectionEntry, error) {
	return manifest.ReadCollection(filepath.Join(s.root, manifest.CollectionFile))
}

// Artifact is one file of a converted dataset.
type Artifact struct {
	Name    string
	Data    []byte
	ModTime time.Time
	Cached  bool
}

// Artifact reads a dataset file, using the artifact cache when possible.
func (s *DatasetService) Artifact(dataset, file string) (*Artifact, error) {
	if !validName(dataset) || !validName(file) {
		return nil, ErrInvalidPath
	}
	path := filepath.Join(s.root, dataset, file)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", dataset, file, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s/%s: %w", dataset, file, ErrNotFound)
	}

	key := cache.ArtifactKey(dataset, file, info.ModTime(), info.Size())
	if s.cache != nil {
		if data, ok := s.cache.GetArtifact(key); ok {
			return &Artifact{Name: file, Data: data, ModTime: info.ModTime(), Cached: true}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetArtifact(key, data)
	}
	return &Artifact{Name: file, Data: data, ModTime: info.ModTime()}, nil
}

// Invalidate drops cached listings after a dataset was (re)written.
func (s *DatasetService) Invalidate() {
	if s.cache != nil {
		s.cache.InvalidateListings()
	}
}

// validName accepts a single path element without separators.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return !strings.HasPrefix(name, ".")
}
