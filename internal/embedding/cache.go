package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/vectorindex"
)

// Defaults for Cache batching.
const (
	DefaultBatchSize   = 32
	DefaultParallelism = 4
)

// Cache memoizes unit-normalized embeddings by text. Misses are embedded in
// batches, optionally in parallel; results always come back in input order.
// A Cache is safe for concurrent use.
type Cache struct {
	embedder    Embedder
	batchSize   int
	parallelism int
	log         zerolog.Logger

	mu   sync.RWMutex
	vecs map[string][]float32
	dim  int
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithBatchSize sets how many texts go into one embedder call.
func WithBatchSize(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithParallelism bounds the number of concurrent embedder calls.
func WithParallelism(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(log zerolog.Logger) CacheOption {
	return func(c *Cache) { c.log = log }
}

// NewCache wraps embedder with memoization and normalization.
func NewCache(embedder Embedder, opts ...CacheOption) *Cache {
	c := &Cache{
		embedder:    embedder,
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
		log:         zerolog.Nop(),
		vecs:        make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dimension returns the vector length seen so far, or 0 before the first embedding.
func (c *Cache) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dim
}

// Len returns the number of cached texts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vecs)
}

// Embed returns the unit vector for a single text.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedAll returns one unit vector per text, in input order. Embedder failures
// are reported as domain.ErrUpstreamService.
func (c *Cache) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	misses := c.misses(texts)
	if len(misses) > 0 {
		if err := c.fill(ctx, misses); err != nil {
			return nil, err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = c.vecs[t]
	}
	return out, nil
}

// misses returns the distinct texts not yet cached, in first-seen order.
func (c *Cache) misses(texts []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, t := range texts {
		if _, ok := c.vecs[t]; ok {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (c *Cache) fill(ctx context.Context, texts []string) error {
	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := c.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch [%d, %d): %w: %w", start, end, domain.ErrUpstreamService, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed batch [%d, %d): got %d vectors: %w", start, end, len(vecs), domain.ErrUpstreamService)
			}
			for i, v := range vecs {
				unit, err := vectorindex.Normalize(v)
				if err != nil {
					return fmt.Errorf("embed text %q: %w", texts[start+i], err)
				}
				results[start+i] = unit
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("Cache.EmbedAll: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	dim := c.dim
	if dim == 0 {
		dim = len(results[0])
	}
	for i, v := range results {
		if len(v) != dim {
			return fmt.Errorf("Cache.EmbedAll: text %q embedded with length %d, expected %d: %w",
				texts[i], len(v), dim, domain.ErrDimensionMismatch)
		}
	}
	c.dim = dim
	for i, v := range results {
		c.vecs[texts[i]] = v
	}
	c.log.Debug().Int("embedded", len(texts)).Int("cached", len(c.vecs)).Msg("Embedding cache filled")
	return nil
}
