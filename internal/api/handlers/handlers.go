// Package handlers implements the HTTP endpoints of the search API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-search/internal/api/middleware"
	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/logger"
	"github.com/dvloznov/ledger-search/internal/search"
	"github.com/dvloznov/ledger-search/internal/summarizer"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Searcher runs a query. *search.Pipeline satisfies it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// Summarizer summarizes transactions. *summarizer.Service satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, txns []domain.Transaction) (string, error)
}

// SearchHandler handles POST /search.
type SearchHandler struct {
	searcher            Searcher
	defaultTopK         int
	defaultInitialFetch int
	log                 zerolog.Logger
}

// NewSearchHandler creates a new search handler. Non-positive defaults fall
// back to search.DefaultTopK and search.DefaultInitialFetch.
func NewSearchHandler(searcher Searcher, defaultTopK, defaultInitialFetch int, log zerolog.Logger) *SearchHandler {
	if defaultTopK <= 0 {
		defaultTopK = search.DefaultTopK
	}
	if defaultInitialFetch <= 0 {
		defaultInitialFetch = search.DefaultInitialFetch
	}
	return &SearchHandler{
		searcher:            searcher,
		defaultTopK:         defaultTopK,
		defaultInitialFetch: defaultInitialFetch,
		log:                 log,
	}
}

// searchRequest distinguishes absent fields (defaults apply) from explicit zeros.
type searchRequest struct {
	Query        *string `json:"query"`
	TopK         *int    `json:"top_k"`
	UserID       *string `json:"userId"`
	Month        *string `json:"month"`
	InitialFetch *int    `json:"initial_fetch"`
}

func (h *SearchHandler) toRequest(body searchRequest) search.Request {
	req := search.Request{
		Query:        *body.Query,
		TopK:         h.defaultTopK,
		InitialFetch: h.defaultInitialFetch,
	}
	if body.TopK != nil {
		req.TopK = *body.TopK
	}
	if body.InitialFetch != nil {
		req.InitialFetch = *body.InitialFetch
	}
	if body.UserID != nil {
		req.UserID = *body.UserID
	}
	if body.Month != nil {
		req.Month = *body.Month
	}
	return req
}

// Search handles POST /search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := decodeJSON(w, r, &body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Query == nil {
		middleware.WriteError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.searcher.Search(r.Context(), h.toRequest(body))
	if err != nil {
		writeDomainError(w, r, h.log, err, "Search failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// SummarizeHandler handles POST /summarize.
type SummarizeHandler struct {
	summarizer Summarizer
	log        zerolog.Logger
}

// NewSummarizeHandler creates a new summarize handler.
func NewSummarizeHandler(s Summarizer, log zerolog.Logger) *SummarizeHandler {
	return &SummarizeHandler{summarizer: s, log: log}
}

// Summarize handles POST /summarize. The body is a search response or any
// object with a "results" array of transactions.
func (h *SummarizeHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Results []domain.Transaction `json:"results"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	summary, err := h.summarizer.Summarize(r.Context(), body.Results)
	if err != nil {
		writeDomainError(w, r, h.log, err, "Summarize failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, summarizer.ErrNotConfigured):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrIndexNotFound),
		errors.Is(err, domain.ErrMetadataNotFound),
		errors.Is(err, domain.ErrArtifactMismatch):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstreamService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger prefers the request-scoped logger set by middleware.Logger.
func requestLogger(r *http.Request, fallback zerolog.Logger) zerolog.Logger {
	return logger.FromContextOr(r.Context(), fallback)
}

// writeDomainError reports err with its mapped status. Errors of a known kind
// carry their message; anything else is logged and reported generically.
func writeDomainError(w http.ResponseWriter, r *http.Request, fallback zerolog.Logger, err error, msg string) {
	log := requestLogger(r, fallback)
	status := StatusFor(err)
	known := status != http.StatusInternalServerError || errors.Is(err, summarizer.ErrNotConfigured)

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Int("status", status).Msg(msg)

	if known {
		middleware.WriteError(w, status, err.Error())
		return
	}
	middleware.WriteError(w, status, "Internal server error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}
