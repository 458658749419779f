// Package summarizer asks a text-generation model for a short summary of
// search results.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-search/internal/domain"
)

// Defaults for summary requests.
const (
	DefaultMaxTokens = 200
	MaxTransactions  = 10
	EmptySummary     = "No transactions to summarize"
	promptPrefix     = "Summarize these transactions: "
)

// ErrNotConfigured means no generation backend is available. It wraps
// domain.ErrUpstreamService.
var ErrNotConfigured = fmt.Errorf("summarizer not configured: %w", domain.ErrUpstreamService)

// Generator produces a completion for a single user prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// Service summarizes transactions with a Generator. A nil *Service or one
// without a Generator reports ErrNotConfigured.
type Service struct {
	gen       Generator
	maxTokens int
}

// NewService creates a Service. maxTokens <= 0 uses DefaultMaxTokens.
func NewService(gen Generator, maxTokens int) *Service {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Service{gen: gen, maxTokens: maxTokens}
}

// Configured reports whether a backend is available.
func (s *Service) Configured() bool {
	return s != nil && s.gen != nil
}

// Summarize summarizes the first MaxTransactions of txns.
func (s *Service) Summarize(ctx context.Context, txns []domain.Transaction) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	if len(txns) == 0 {
		return EmptySummary, nil
	}

	summary, err := s.gen.Generate(ctx, BuildPrompt(txns), s.maxTokens)
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamService) {
			return "", fmt.Errorf("Summarize: %w", err)
		}
		return "", fmt.Errorf("Summarize: %w: %w", domain.ErrUpstreamService, err)
	}
	return strings.TrimSpace(summary), nil
}

// BuildPrompt renders one line per transaction, at most MaxTransactions:
//
//	Summarize these transactions: {date} {description} ₹{amount} {category}
func BuildPrompt(txns []domain.Transaction) string {
	txns = txns[:min(len(txns), MaxTransactions)]
	lines := make([]string, len(txns))
	for i, t := range txns {
		lines[i] = fmt.Sprintf("%s %s ₹%s %s", t.Date, t.Description, domain.FormatAmount(t.Amount), t.Category)
	}
	return promptPrefix + strings.Join(lines, "\n")
}
