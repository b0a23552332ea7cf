// Package writer persists dataset artifacts. Every file is written to a
// temporary name and renamed into place so readers never observe a partial
// artifact.
package writer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Dataset writes the artifacts of one dataset directory.
type Dataset struct {
	Dir string
}

// New creates <root>/<name>/ and returns a writer for it.
func New(root, name string) (*Dataset, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}
	return &Dataset{Dir: dir}, nil
}

// Path returns the location of a dataset file.
func (d *Dataset) Path(name string) string {
	return filepath.Join(d.Dir, name)
}

// Remove deletes a dataset file. A missing file is not an error.
func (d *Dataset) Remove(name string) error {
	if err := os.Remove(d.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// WriteFile writes data atomically under the dataset directory.
func (d *Dataset) WriteFile(name string, data []byte) error {
	if err := WriteFileAtomic(d.Path(name), data); err != nil {
		return err
	}
	slog.Debug("wrote artifact", "file", name, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

// WriteStream writes whatever fn produces atomically.
func (d *Dataset) WriteStream(name string, fn func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return d.WriteFile(name, buf.Bytes())
}

// WriteJSON marshals v with encoding/json.
func (d *Dataset) WriteJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return d.WriteFile(name, data)
}

// WriteFileAtomic writes data to path through a temporary file in the same
// directory.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}

// AppendFloat appends v in the same format encoding/json uses, with
// non-finite values written as null.
func AppendFloat(b []byte, v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(b, "null"...)
	}
	abs := math.Abs(v)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b = strconv.AppendFloat(b, v, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(b)
		if n >= 4 && b[n-4] == 'e' && b[n-3] == '-' && b[n-2] == '0' {
			b[n-2] = b[n-1]
			b = b[:n-1]
		}
	}
	return b
}

// FloatArray is the {data, min, max} document of a feature. Non-finite
// values are encoded as null.
type FloatArray struct {
	Data []float64
	Min  float64
	Max  float64
}

// MarshalJSON implements json.Marshaler.
func (a FloatArray) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, 16+len(a.Data)*8)
	b = append(b, `{"data":[`...)
	for i, v := range a.Data {
		if i > 0 {
			b = append(b, ',')
		}
		b = AppendFloat(b, v)
	}
	b = append(b, `],"min":`...)
	b = AppendFloat(b, a.Min)
	b = append(b, `,"max":`...)
	b = AppendFloat(b, a.Max)
	b = append(b, '}')
	return b, nil
}

// Ints is the {data} document of an integer array.
type Ints[T ~int64 | ~uint16 | ~uint32 | ~int] struct {
	Data []T `json:"data"`
}

// Bools is the outliers document.
type Bools struct {
	Data []bool `json:"data"`
	Min  bool   `json:"min"`
	Max  bool   `json:"max"`
}
