package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-search/internal/domain"
)

func txns(n int) []domain.Transaction {
	out := make([]domain.Transaction, n)
	for i := range out {
		out[i] = domain.Transaction{
			ID: fmt.Sprintf("t%d", i), UserID: "user_1", Date: fmt.Sprintf("2024-08-%02d", i+1),
			Description: fmt.Sprintf("Purchase %d", i), Amount: float64(100*(i+1)) + 0.5,
			Type: domain.TxnDebit, Category: "Shopping",
		}
	}
	return out
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt(txns(2))
	want := "Summarize these transactions: 2024-08-01 Purchase 0 ₹100.5 Shopping\n2024-08-02 Purchase 1 ₹200.5 Shopping"
	assert.Equal(t, want, got)
}

func TestBuildPrompt_CapsAtTen(t *testing.T) {
	got := BuildPrompt(txns(25))
	assert.Equal(t, MaxTransactions, strings.Count(got, "\n")+1)
	assert.NotContains(t, got, "Purchase 10")
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name      string
		svc       *Service
		input     []domain.Transaction
		want      string
		wantErrIs []error
	}{
		{
			name:      "nil service is unconfigured",
			svc:       nil,
			input:     txns(1),
			wantErrIs: []error{ErrNotConfigured, domain.ErrUpstreamService},
		},
		{
			name:      "unconfigured checked before empty input",
			svc:       NewService(nil, 0),
			input:     nil,
			wantErrIs: []error{ErrNotConfigured},
		},
		{
			name: "empty results",
			svc: NewService(GeneratorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
				t.Fatal("generator must not be called for empty input")
				return "", nil
			}), 0),
			input: []domain.Transaction{},
			want:  EmptySummary,
		},
		{
			name: "success",
			svc: NewService(GeneratorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
				assert.Equal(t, DefaultMaxTokens, maxTokens)
				assert.True(t, strings.HasPrefix(prompt, "Summarize these transactions: "))
				return "  You spent mostly on shopping.\n", nil
			}), 0),
			input: txns(3),
			want:  "You spent mostly on shopping.",
		},
		{
			name: "upstream failure",
			svc: NewService(GeneratorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
				return "", errors.New("rate limited")
			}), 50),
			input:     txns(3),
			wantErrIs: []error{domain.ErrUpstreamService},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.svc.Summarize(context.Background(), tt.input)
			if len(tt.wantErrIs) > 0 {
				require.Error(t, err)
				for _, target := range tt.wantErrIs {
					assert.ErrorIs(t, err, target)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize_UpstreamDetailIsKept(t *testing.T) {
	svc := NewService(GeneratorFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "", errors.New("model overloaded")
	}), 0)
	_, err := svc.Summarize(context.Background(), txns(1))
	assert.ErrorContains(t, err, "model overloaded")
}

func TestNew(t *testing.T) {
	svc, err := New(context.Background(), Options{Provider: ProviderOpenAI})
	require.NoError(t, err)
	assert.False(t, svc.Configured())

	svc, err = New(context.Background(), Options{Provider: ProviderOpenAI, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.True(t, svc.Configured())

	_, err = New(context.Background(), Options{Provider: "llama", APIKey: "k"})
	assert.Error(t, err)
}
