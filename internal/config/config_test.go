package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missingEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(missingEnv(t))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.DefaultTopK)
	assert.Equal(t, 200, cfg.DefaultInitialFetch)
	assert.Equal(t, "hash", cfg.EmbedderProvider)
	assert.Equal(t, 200, cfg.SummarizerMaxTokens)
	assert.Equal(t, "embeddings/index.lsix", cfg.IndexPath)
	assert.Equal(t, "embeddings/metadata.json", cfg.MetadataPath)
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("LEDGER_PORT", "9090")
	t.Setenv("LEDGER_HOST", "127.0.0.1")
	t.Setenv("LEDGER_EMBEDDER_PROVIDER", "openai")
	t.Setenv("LEDGER_TRANSACTIONS_URI", "gs://ledger/transactions.json")
	t.Setenv("OPENAI_API_KEY", "sk-unprefixed")

	cfg, err := Load(missingEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, "gs://ledger/transactions.json", cfg.TransactionsURI)
	assert.Equal(t, "sk-unprefixed", cfg.EmbedderAPIKey())
	assert.Equal(t, "sk-unprefixed", cfg.SummarizerAPIKey())
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGER_DEFAULT_TOP_K=9\nLEDGER_LOG_FORMAT=json\n"), 0o644))
	t.Setenv("LEDGER_LOG_FORMAT", "console")
	// godotenv sets variables process-wide; make sure t.Setenv restores them
	t.Setenv("LEDGER_DEFAULT_TOP_K", "")
	os.Unsetenv("LEDGER_DEFAULT_TOP_K")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.DefaultTopK)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"LEDGER_EMBEDDER_PROVIDER":   "word2vec",
		"LEDGER_DEFAULT_TOP_K":       "0",
		"LEDGER_PORT":                "not-a-number",
		"LEDGER_LOG_FORMAT":          "xml",
		"LEDGER_SUMMARIZER_PROVIDER": "claude",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(missingEnv(t))
			assert.Error(t, err)
		})
	}
}

func TestSummarizerAPIKey(t *testing.T) {
	cfg := Config{SummarizerProvider: "gemini", GeminiAPIKey: "g", OpenAIAPIKey: "o", EmbedderProvider: "hash"}
	assert.Equal(t, "g", cfg.SummarizerAPIKey())
	assert.Empty(t, cfg.EmbedderAPIKey())
}
