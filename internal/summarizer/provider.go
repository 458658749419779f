package summarizer

import (
	"context"
	"fmt"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Options selects and configures a generation backend.
type Options struct {
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int
}

// New builds a Service. A missing API key yields an unconfigured Service
// rather than an error, so that the server can start and report the problem
// per request.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.APIKey == "" {
		return NewService(nil, opts.MaxTokens), nil
	}

	var (
		gen Generator
		err error
	)
	switch opts.Provider {
	case "", ProviderOpenAI:
		gen, err = NewOpenAIGenerator(opts.APIKey, opts.Model)
	case ProviderGemini:
		gen, err = NewGeminiGenerator(ctx, opts.APIKey, opts.Model)
	default:
		return nil, fmt.Errorf("summarizer.New: unknown provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewService(gen, opts.MaxTokens), nil
}
