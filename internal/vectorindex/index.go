// Package vectorindex provides an exact inner-product index over unit vectors.
//
// Vectors are stored contiguously in insertion order; the position of a vector
// (its ordinal) is the join key to the metadata array built alongside it.
// An Index is safe for concurrent Search calls once no more vectors are added.
package vectorindex

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/dvloznov/ledger-search/internal/domain"
)

// NormTolerance is the maximum distance from 1.0 an added vector's L2 norm may have.
const NormTolerance = 1e-5

// Hit is one search result: the ordinal of a stored vector and its inner
// product with the query.
type Hit struct {
	Ordinal int
	Score   float64
}

// Index is a flat inner-product index with a fixed dimension.
type Index struct {
	dim  int
	data []float32 // len == n*dim
}

// New creates an empty index for vectors of length dim.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vectorindex: dimension must be positive, got %d: %w", dim, domain.ErrInvalidArgument)
	}
	return &Index{dim: dim}, nil
}

// Dim returns the fixed vector dimension.
func (ix *Index) Dim() int { return ix.dim }

// Len returns the number of stored vectors.
func (ix *Index) Len() int {
	if ix.dim == 0 {
		return 0
	}
	return len(ix.data) / ix.dim
}

// Add appends vectors in order. The batch is checked before anything is
// appended, so a failed Add leaves the index unchanged.
func (ix *Index) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("vectorindex: vector %d has length %d, index dimension is %d: %w",
				i, len(v), ix.dim, domain.ErrDimensionMismatch)
		}
		if n := Norm(v); math.Abs(n-1) > NormTolerance {
			return fmt.Errorf("vectorindex: vector %d is not unit length (norm %.6f)", i, n)
		}
	}
	ix.data = slices.Grow(ix.data, len(vectors)*ix.dim)
	for _, v := range vectors {
		ix.data = append(ix.data, v...)
	}
	return nil
}

// Vector returns a copy of the vector stored at ordinal i.
func (ix *Index) Vector(i int) ([]float32, error) {
	if i < 0 || i >= ix.Len() {
		return nil, fmt.Errorf("vectorindex: ordinal %d out of range [0, %d)", i, ix.Len())
	}
	return slices.Clone(ix.data[i*ix.dim : (i+1)*ix.dim]), nil
}

// Search returns up to k ordinals ranked by descending inner product with
// query. Equal scores are ordered by ascending ordinal. When the index holds
// fewer than k vectors all of them are returned.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("vectorindex: k must be positive, got %d: %w", k, domain.ErrInvalidArgument)
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("vectorindex: query has length %d, index dimension is %d: %w",
			len(query), ix.dim, domain.ErrDimensionMismatch)
	}

	n := ix.Len()
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{Ordinal: i, Score: dot(query, ix.data[i*ix.dim:(i+1)*ix.dim])}
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})
	if k < n {
		hits = hits[:k]
	}
	return hits, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 { return math.Sqrt(dot(v, v)) }

// Normalize returns v scaled to unit L2 norm. A zero vector cannot be
// normalized and yields an error.
func Normalize(v []float32) ([]float32, error) {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("vectorindex: cannot normalize vector with norm %v", n)
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, nil
}
