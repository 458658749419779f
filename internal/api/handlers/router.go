package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/ledger-search/internal/api/middleware"
)

// Routes groups the handlers served by the API.
type Routes struct {
	Search    *SearchHandler
	Summarize *SummarizeHandler
	Index     *IndexHandler
	Jobs      *JobsHandler
}

// NewRouter registers every route on a new ServeMux. Nil handlers leave their
// routes unregistered.
func NewRouter(routes Routes) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", Health)

	if routes.Search != nil {
		mux.HandleFunc("/search", method(http.MethodPost, routes.Search.Search))
	}
	if routes.Summarize != nil {
		mux.HandleFunc("/summarize", method(http.MethodPost, routes.Summarize.Summarize))
	}
	if routes.Index != nil {
		mux.HandleFunc("/api/index", method(http.MethodGet, routes.Index.Status))
		mux.HandleFunc("/api/index/reload", method(http.MethodPost, routes.Index.Reload))
		mux.HandleFunc("/api/index/rebuild", method(http.MethodPost, routes.Index.Rebuild))
		mux.HandleFunc("/api/index/builds", method(http.MethodGet, routes.Index.Builds))
	}
	if routes.Jobs != nil {
		mux.HandleFunc("/api/jobs", method(http.MethodGet, routes.Jobs.ListJobs))
		mux.HandleFunc("/api/jobs/{id}", method(http.MethodGet, routes.Jobs.GetJob))
	}

	return mux
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func method(allowed string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != allowed {
			w.Header().Set("Allow", allowed)
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		next(w, r)
	}
}
