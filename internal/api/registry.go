package api

import (
	"github.com/colorizer-data/colorizer/internal/manifest"
	"github.com/colorizer-data/colorizer/internal/service"
)

// DatasetInfo contains information about a dataset for the API response.
type DatasetInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path,omitempty"`
	Configured bool   `json:"configured"`
	Converted  bool   `json:"converted"`
}

// DatasetRegistry knows the configured datasets and where converted ones
// are served from.
type DatasetRegistry struct {
	service      *service.DatasetService
	configured   map[string]bool
	datasetOrder []string
	title        string
}

// NewDatasetRegistry creates a new dataset registry.
func NewDatasetRegistry(svc *service.DatasetService, order []string, title string) *DatasetRegistry {
	configured := make(map[string]bool, len(order))
	for _, id := range order {
		configured[id] = true
	}
	return &DatasetRegistry{
		service:      svc,
		configured:   configured,
		datasetOrder: order,
		title:        title,
	}
}

// Service returns the dataset service.
func (r *DatasetRegistry) Service() *service.DatasetService {
	return r.service
}

// Configured reports whether a dataset can be converted by a job.
func (r *DatasetRegistry) Configured(datasetID string) bool {
	return r.configured[datasetID]
}

// DatasetIDs returns configured dataset IDs in config order.
func (r *DatasetRegistry) DatasetIDs() []string {
	return r.datasetOrder
}

// Title returns the configured site title.
func (r *DatasetRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "Colorizer datasets"
}

// Datasets lists configured datasets in config order, followed by
// converted datasets that are no longer configured.
func (r *DatasetRegistry) Datasets() ([]DatasetInfo, error) {
	converted, err := r.service.Converted()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]manifest.CollectionEntry, len(converted))
	for _, e := range converted {
		byName[e.Name] = e
	}

	infos := make([]DatasetInfo, 0, len(r.datasetOrder)+len(converted))
	for _, id := range r.datasetOrder {
		e, ok := byName[id]
		infos = append(infos, DatasetInfo{ID: id, Name: id, Path: e.Path, Configured: true, Converted: ok})
	}
	for _, e := range converted {
		if !r.configured[e.Name] {
			infos = append(infos, DatasetInfo{ID: e.Name, Name: e.Name, Path: e.Path, Converted: true})
		}
	}
	return infos, nil
}
