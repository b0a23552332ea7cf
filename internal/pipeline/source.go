package pipeline

import (
	"context"
	"fmt"

	"github.com/colorizer-data/colorizer/internal/data/images"
	"github.com/colorizer-data/colorizer/internal/data/zarr"
	"github.com/colorizer-data/colorizer/internal/frame"
)

// FrameSource loads the label image of one timepoint.
type FrameSource interface {
	Load(ctx context.Context, path string) (frame.Labels, error)
}

// AutoSource dispatches to the zarr reader for ".zarr" stores and to the
// image reader otherwise.
type AutoSource struct {
	images *images.Source
	zarr   *zarr.Source
}

// NewAutoSource creates a source that handles every supported format.
func NewAutoSource(projection frame.Projection, cacheSize int) (*AutoSource, error) {
	z, err := zarr.NewSource(projection, cacheSize)
	if err != nil {
		return nil, err
	}
	return &AutoSource{images: images.NewSource(), zarr: z}, nil
}

// Load implements FrameSource.
func (s *AutoSource) Load(ctx context.Context, path string) (frame.Labels, error) {
	if path == "" {
		return frame.Labels{}, fmt.Errorf("no label image path")
	}
	if zarr.IsZarrPath(path) {
		return s.zarr.Load(ctx, path)
	}
	return s.images.Load(ctx, path)
}

// Close releases decoder resources.
func (s *AutoSource) Close() {
	s.zarr.Close()
}
