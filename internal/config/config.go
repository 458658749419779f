// Package config loads ledger-search settings from the environment.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/dvloznov/ledger-search/internal/domain"
)

// EnvPrefix is prepended to every variable name, e.g. LEDGER_PORT. Keys with
// an explicit name also fall back to the unprefixed variable (OPENAI_API_KEY).
const EnvPrefix = "LEDGER"

// Config holds all environment-based configuration.
type Config struct {
	// Host is the server host to bind to.
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// Port is the server port to listen on.
	Port int `envconfig:"PORT" default:"8080" validate:"gt=0,lt=65536"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console" validate:"oneof=console json"`

	// TransactionsURI is a local path, gs://bucket/object or bigquery://project/dataset/table.
	TransactionsURI string `envconfig:"TRANSACTIONS_URI" default:"data/transactions.json"`
	IndexPath       string `envconfig:"INDEX_PATH" default:"embeddings/index.lsix"`
	MetadataPath    string `envconfig:"METADATA_PATH" default:"embeddings/metadata.json"`
	// ArtifactBucket enables mirroring build artifacts to Cloud Storage.
	ArtifactBucket string `envconfig:"ARTIFACT_BUCKET"`
	ArtifactPrefix string `envconfig:"ARTIFACT_PREFIX" default:"indexes"`
	// BuildLogPath is the SQLite build ledger. Empty disables it.
	BuildLogPath string `envconfig:"BUILD_LOG_PATH" default:"embeddings/builds.db"`

	DefaultTopK         int `envconfig:"DEFAULT_TOP_K" default:"5" validate:"gt=0"`
	DefaultInitialFetch int `envconfig:"DEFAULT_INITIAL_FETCH" default:"200" validate:"gt=0"`

	EmbedderProvider  string `envconfig:"EMBEDDER_PROVIDER" default:"hash" validate:"oneof=gemini openai hash"`
	EmbedderModel     string `envconfig:"EMBEDDER_MODEL"`
	EmbedderDimension int    `envconfig:"EMBEDDER_DIMENSION" validate:"gte=0"`
	EmbedBatchSize    int    `envconfig:"EMBED_BATCH_SIZE" default:"32" validate:"gt=0"`
	EmbedParallelism  int    `envconfig:"EMBED_PARALLELISM" default:"4" validate:"gt=0"`

	SummarizerProvider  string `envconfig:"SUMMARIZER_PROVIDER" default:"openai" validate:"oneof=openai gemini"`
	SummarizerModel     string `envconfig:"SUMMARIZER_MODEL"`
	SummarizerMaxTokens int    `envconfig:"SUMMARIZER_MAX_TOKENS" default:"200" validate:"gt=0"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`

	JobQueueSize int `envconfig:"JOB_QUEUE_SIZE" default:"16" validate:"gt=0"`
	JobWorkers   int `envconfig:"JOB_WORKERS" default:"1" validate:"gt=0"`
}

// Load reads an optional .env file, then the environment. envPath "" means
// ".env"; a missing file is not an error.
func Load(envPath string) (Config, error) {
	if err := LoadDotEnv(envPath); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file without overriding ones that
// are already set. A missing file is skipped.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if err := domain.Validator().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr returns host:port for the HTTP server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EmbedderAPIKey returns the key for the configured embedding provider.
func (c Config) EmbedderAPIKey() string {
	switch c.EmbedderProvider {
	case "openai":
		return c.OpenAIAPIKey
	case "gemini":
		return c.GeminiAPIKey
	}
	return ""
}

// SummarizerAPIKey returns the key for the configured summarizer provider.
func (c Config) SummarizerAPIKey() string {
	if c.SummarizerProvider == "gemini" {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}
