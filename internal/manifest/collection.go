package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/colorizer-data/colorizer/internal/writer"
)

// CollectionEntry is one dataset listed in collection.json.
type CollectionEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ReadCollection loads a collection file. A missing file is an empty
// collection.
func ReadCollection(path string) ([]CollectionEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []CollectionEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	var entries []CollectionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse collection %s: %w", path, err)
	}
	return entries, nil
}

// UpdateCollection adds or updates the entry for name. An unreadable
// collection file is replaced.
func UpdateCollection(path, name, datasetPath string) error {
	entries, err := ReadCollection(path)
	if err != nil {
		slog.Warn("replacing unreadable collection", "path", path, "error", err)
		entries = []CollectionEntry{}
	}

	found := false
	for i := range entries {
		if entries[i].Name == name {
			entries[i].Path = datasetPath
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, CollectionEntry{Name: name, Path: datasetPath})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal collection: %w", err)
	}
	return writer.WriteFileAtomic(path, data)
}
