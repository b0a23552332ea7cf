// Package api provides HTTP handlers for the dataset server.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/colorizer-data/colorizer/internal/jobstore"
	"github.com/colorizer-data/colorizer/internal/manifest"
	"github.com/colorizer-data/colorizer/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	CORSOrigins []string
	JobManager  *JobManager
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/"+manifest.CollectionFile, collectionHandler(cfg.Registry))
	r.Get("/datasets", datasetsHandler(cfg.Registry))

	// Converted dataset files: manifest.json, feature_0.json, frame_3.png, ...
	r.Get("/d/{dataset}/{file}", artifactHandler(cfg.Registry))

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", jobSubmitHandler(cfg.Registry, cfg.JobManager))
		r.Get("/", jobListHandler(cfg.JobManager))
		r.Get("/{job_id}", jobStatusHandler(cfg.JobManager))
		r.Delete("/{job_id}", jobCancelHandler(cfg.JobManager))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

// collectionHandler serves collection.json from the output root.
func collectionHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := registry.Service().CollectionJSON()
		if err != nil {
			http.Error(w, "failed to read collection: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

// datasetsHandler returns configured and converted datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasets, err := registry.Datasets()
		if err != nil {
			http.Error(w, "failed to list datasets: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"title":    registry.Title(),
			"datasets": datasets,
		})
	}
}

// artifactHandler serves one file of a converted dataset.
func artifactHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasetID := chi.URLParam(r, "dataset")
		file := chi.URLParam(r, "file")

		a, err := registry.Service().Artifact(datasetID, file)
		switch {
		case errors.Is(err, service.ErrInvalidPath):
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		case errors.Is(err, service.ErrNotFound):
			http.Error(w, "not found: "+datasetID+"/"+file, http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, "failed to read "+file+": "+err.Error(), http.StatusInternalServerError)
			return
		}

		if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		if a.Cached {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		http.ServeContent(w, r, a.Name, a.ModTime, bytes.NewReader(a.Data))
	}
}

// Conversion job handlers

type jobSubmitRequest struct {
	Dataset  string  `json:"dataset"`
	NoFrames bool    `json:"noframes"`
	Scale    float64 `json:"scale"`
	Workers  int     `json:"workers"`
}

func jobSubmitHandler(registry *DatasetRegistry, jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		var req jobSubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Dataset == "" {
			http.Error(w, "dataset is required", http.StatusBadRequest)
			return
		}
		if !registry.Configured(req.Dataset) {
			http.Error(w, "dataset not configured: "+req.Dataset, http.StatusNotFound)
			return
		}
		if req.Scale < 0 {
			http.Error(w, "scale must be positive", http.StatusBadRequest)
			return
		}
		if req.Workers < 0 || req.Workers > 64 {
			http.Error(w, "workers must be between 0 and 64", http.StatusBadRequest)
			return
		}

		job, err := jm.Submit(jobstore.JobParams{
			Dataset:  req.Dataset,
			NoFrames: req.NoFrames,
			Scale:    req.Scale,
			Workers:  req.Workers,
		})
		if err != nil {
			http.Error(w, "failed to submit job: "+err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		})
	}
}

func jobListHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		jobs, err := jm.List(r.URL.Query().Get("dataset"))
		if err != nil {
			http.Error(w, "failed to list jobs: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if jobs == nil {
			jobs = []*jobstore.Job{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
	}
}

func jobStatusHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		job := jm.Get(chi.URLParam(r, "job_id"))
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func jobCancelHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := jm.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id":    jobID,
			"cancelled": jm.Cancel(jobID),
		})
	}
}
