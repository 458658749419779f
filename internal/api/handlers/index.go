package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-search/internal/api/middleware"
	"github.com/dvloznov/ledger-search/internal/buildlog"
	"github.com/dvloznov/ledger-search/internal/jobs"
	"github.com/dvloznov/ledger-search/internal/snapshot"
)

const defaultBuildsLimit = 20

// SnapshotStore exposes the served snapshot. *snapshot.Holder satisfies it.
type SnapshotStore interface {
	Current() (*snapshot.Snapshot, error)
	Reload(indexPath, metadataPath string) (*snapshot.Snapshot, error)
}

// BuildLister lists recorded index builds. *buildlog.Store satisfies it.
type BuildLister interface {
	ListRuns(ctx context.Context, limit int) ([]*buildlog.Run, error)
}

// IndexHandler handles index status, reload and rebuild requests.
type IndexHandler struct {
	snapshots    SnapshotStore
	builds       BuildLister
	rebuilds     jobs.Publisher
	indexPath    string
	metadataPath string
	log          zerolog.Logger
}

// NewIndexHandler creates a new index handler. builds and rebuilds may be nil,
// in which case the corresponding endpoints report 503.
func NewIndexHandler(snapshots SnapshotStore, builds BuildLister, rebuilds jobs.Publisher, indexPath, metadataPath string, log zerolog.Logger) *IndexHandler {
	return &IndexHandler{
		snapshots:    snapshots,
		builds:       builds,
		rebuilds:     rebuilds,
		indexPath:    indexPath,
		metadataPath: metadataPath,
		log:          log,
	}
}

type indexStatus struct {
	Loaded    bool       `json:"loaded"`
	Records   int        `json:"records"`
	Dimension int        `json:"dimension"`
	BuildID   string     `json:"build_id,omitempty"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
}

func statusOf(s *snapshot.Snapshot) indexStatus {
	loadedAt := s.LoadedAt
	return indexStatus{
		Loaded:    true,
		Records:   s.Len(),
		Dimension: s.Index.Dim(),
		BuildID:   s.BuildID,
		LoadedAt:  &loadedAt,
	}
}

// Status handles GET /api/index
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, err := h.snapshots.Current()
	if err != nil {
		middleware.WriteJSON(w, http.StatusOK, indexStatus{Loaded: false})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, statusOf(s))
}

// Reload handles POST /api/index/reload
func (h *IndexHandler) Reload(w http.ResponseWriter, r *http.Request) {
	s, err := h.snapshots.Reload(h.indexPath, h.metadataPath)
	if err != nil {
		writeDomainError(w, r, h.log, err, "Index reload failed")
		return
	}
	log := requestLogger(r, h.log)
	log.Info().Str("build_id", s.BuildID).Int("records", s.Len()).Msg("Index reloaded")
	middleware.WriteJSON(w, http.StatusOK, statusOf(s))
}

// Rebuild handles POST /api/index/rebuild
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.rebuilds == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Rebuild queue not configured")
		return
	}

	job := &jobs.BuildIndexJob{RequestedBy: middleware.RequestIDFromContext(r.Context())}
	if err := h.rebuilds.PublishBuildIndex(r.Context(), job); err != nil {
		log := requestLogger(r, h.log)
		log.Error().Err(err).Msg("Failed to enqueue index rebuild")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue rebuild")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.JobID,
		"status": job.Status,
	})
}

// Builds handles GET /api/index/builds
func (h *IndexHandler) Builds(w http.ResponseWriter, r *http.Request) {
	if h.builds == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Build log not configured")
		return
	}

	limit := defaultBuildsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = l
	}

	runs, err := h.builds.ListRuns(r.Context(), limit)
	if err != nil {
		log := requestLogger(r, h.log)
		log.Error().Err(err).Msg("Failed to list builds")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list builds")
		return
	}
	if runs == nil {
		runs = []*buildlog.Run{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"builds": runs,
		"count":  len(runs),
	})
}
