// Package embedding turns transaction text into unit-length vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"
)

// Embedder produces one vector per input text. Implementations must return
// vectors in input order and of a fixed dimension for a given model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Options selects and configures an embedder backend.
type Options struct {
	Provider  string
	Model     string
	Dimension int
	APIKey    string
}

// New builds the embedder named by opts.Provider.
func New(ctx context.Context, opts Options) (Embedder, error) {
	switch strings.ToLower(opts.Provider) {
	case ProviderGemini:
		return NewGeminiEmbedder(ctx, opts.APIKey, opts.Model, opts.Dimension)
	case ProviderOpenAI:
		return NewOpenAIEmbedder(opts.APIKey, opts.Model, opts.Dimension)
	case ProviderHash, "":
		return NewHashEmbedder(opts.Dimension), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", opts.Provider)
	}
}
