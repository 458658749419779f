// Package search answers natural-language queries over the indexed ledger:
// embed, over-fetch, filter by owner and month, optionally rerank by amount,
// then truncate.
package search

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/embedding"
	"github.com/dvloznov/ledger-search/internal/snapshot"
	"github.com/dvloznov/ledger-search/internal/vectorindex"
)

// Request defaults.
const (
	DefaultTopK         = 5
	DefaultInitialFetch = 200
)

// rerankTriggers switch the ordering of survivors from similarity to amount.
var rerankTriggers = []string{"expense", "top"}

// Request is a validated query. InitialFetch is the candidate pool width and
// is independent of TopK: a pool smaller than TopK simply yields fewer results.
type Request struct {
	Query        string
	TopK         int `validate:"gt=0"`
	UserID       string
	Month        string
	InitialFetch int `validate:"gt=0"`
}

// NewRequest returns a request with default sizes.
func NewRequest(query string) Request {
	return Request{Query: query, TopK: DefaultTopK, InitialFetch: DefaultInitialFetch}
}

// Result is a transaction with its similarity to the query.
type Result struct {
	domain.Transaction
	Score float64 `json:"score"`
}

// Response echoes the request filters as given and reports the result counts.
type Response struct {
	Query            string   `json:"query"`
	UserID           *string  `json:"userId"`
	Month            *string  `json:"month"`
	Results          []Result `json:"results"`
	Count            int      `json:"count"`
	TotalBeforeLimit int      `json:"total_before_limit"`
}

// SnapshotSource yields the (index, metadata) pair to query.
// *snapshot.Holder satisfies it.
type SnapshotSource interface {
	Current() (*snapshot.Snapshot, error)
}

// Pipeline runs queries against the current snapshot. It is safe for
// concurrent use and never mutates the snapshot.
type Pipeline struct {
	snapshots SnapshotSource
	embedder  embedding.Embedder
	log       zerolog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(snapshots SnapshotSource, embedder embedding.Embedder, log zerolog.Logger) *Pipeline {
	return &Pipeline{snapshots: snapshots, embedder: embedder, log: log}
}

// Search runs one query. Errors wrap domain.ErrInvalidArgument,
// domain.ErrIndexNotFound or domain.ErrUpstreamService.
func (p *Pipeline) Search(ctx context.Context, req Request) (*Response, error) {
	month, err := validate(req)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	snap, err := p.snapshots.Current()
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	query, err := p.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	hits, err := snap.Index.Search(query, req.InitialFetch)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	survivors := filter(snap.Records, hits, req.UserID, month)
	reranked := shouldRerank(req.Query)
	if reranked {
		slices.SortStableFunc(survivors, func(a, b Result) int {
			return cmp.Compare(b.Amount, a.Amount)
		})
	}

	final := survivors[:min(req.TopK, len(survivors))]

	p.log.Debug().
		Str("query", req.Query).
		Str("user_id", req.UserID).
		Str("month", month).
		Int("candidates", len(hits)).
		Int("survivors", len(survivors)).
		Int("returned", len(final)).
		Bool("reranked", reranked).
		Msg("Search complete")

	return &Response{
		Query:            req.Query,
		UserID:           optional(req.UserID),
		Month:            optional(req.Month),
		Results:          final,
		Count:            len(final),
		TotalBeforeLimit: len(survivors),
	}, nil
}

func validate(req Request) (month string, err error) {
	if err := domain.Validator().Struct(req); err != nil {
		return "", fmt.Errorf("top_k and initial_fetch must be positive (got %d, %d): %w",
			req.TopK, req.InitialFetch, domain.ErrInvalidArgument)
	}
	return ParseMonth(req.Month)
}

func (p *Pipeline) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", domain.ErrUpstreamService, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors: %w", len(vecs), domain.ErrUpstreamService)
	}
	unit, err := vectorindex.Normalize(vecs[0])
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return unit, nil
}

// filter keeps hits owned by userID (when set) whose date falls in month
// (when set), preserving hit order. Records whose date has no month segment
// are dropped only while a month filter is active.
func filter(records []domain.Transaction, hits []vectorindex.Hit, userID, month string) []Result {
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		rec := records[h.Ordinal]
		if userID != "" && rec.UserID != userID {
			continue
		}
		if month != "" {
			m, ok := rec.MonthSegment()
			if !ok || m != month {
				continue
			}
		}
		out = append(out, Result{Transaction: rec, Score: h.Score})
	}
	return out
}

func shouldRerank(query string) bool {
	q := strings.ToLower(query)
	for _, t := range rerankTriggers {
		if strings.Contains(q, t) {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
