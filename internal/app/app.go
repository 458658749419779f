// Package app wires configuration into the services shared by the API
// server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-search/internal/buildlog"
	"github.com/dvloznov/ledger-search/internal/config"
	"github.com/dvloznov/ledger-search/internal/embedding"
	"github.com/dvloznov/ledger-search/internal/gcs"
	"github.com/dvloznov/ledger-search/internal/indexer"
	"github.com/dvloznov/ledger-search/internal/recordstore"
	"github.com/dvloznov/ledger-search/internal/summarizer"
)

// Services holds long-lived clients. Optional members are nil when their
// configuration is absent.
type Services struct {
	Config   config.Config
	Log      zerolog.Logger
	Embedder embedding.Embedder
	Cache    *embedding.Cache

	// BuildLog is nil when BuildLogPath is empty.
	BuildLog *buildlog.Store
	// Publisher is nil when ArtifactBucket is empty.
	Publisher *indexer.Publisher

	closers []func() error
}

// New creates the embedder, the embedding cache, the build ledger and the
// artifact publisher described by cfg.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Services, error) {
	s := &Services{Config: cfg, Log: log}

	emb, err := embedding.New(ctx, embedding.Options{
		Provider:  cfg.EmbedderProvider,
		Model:     cfg.EmbedderModel,
		Dimension: cfg.EmbedderDimension,
		APIKey:    cfg.EmbedderAPIKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	s.Embedder = emb
	s.Cache = embedding.NewCache(emb,
		embedding.WithBatchSize(cfg.EmbedBatchSize),
		embedding.WithParallelism(cfg.EmbedParallelism),
		embedding.WithLogger(log),
	)

	if cfg.BuildLogPath != "" {
		store, err := buildlog.Open(cfg.BuildLogPath)
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		s.BuildLog = store
		s.closers = append(s.closers, store.Close)
	}

	if cfg.ArtifactBucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		s.Publisher = indexer.NewPublisher(client, cfg.ArtifactBucket, cfg.ArtifactPrefix)
		s.closers = append(s.closers, client.Close)
	}

	log.Debug().
		Str("embedder", cfg.EmbedderProvider).
		Bool("build_log", s.BuildLog != nil).
		Bool("publisher", s.Publisher != nil).
		Msg("Services initialized")
	return s, nil
}

// NewBuilder opens the transactions source and returns a Builder writing to
// the configured artifact paths. The source is closed by Close.
func (s *Services) NewBuilder(ctx context.Context) (*indexer.Builder, error) {
	src, err := recordstore.Open(ctx, s.Config.TransactionsURI)
	if err != nil {
		return nil, fmt.Errorf("NewBuilder: %w", err)
	}
	s.closers = append(s.closers, src.Close)

	opts := []indexer.Option{indexer.WithLogger(s.Log)}
	if s.BuildLog != nil {
		opts = append(opts, indexer.WithRecorder(s.BuildLog))
	}
	if s.Publisher != nil {
		opts = append(opts, indexer.WithPublisher(s.Publisher))
	}

	return indexer.New(src, s.Cache, indexer.Config{
		IndexPath:    s.Config.IndexPath,
		MetadataPath: s.Config.MetadataPath,
		SourceName:   s.Config.TransactionsURI,
	}, opts...), nil
}

// NewSummarizer returns the summarization service. It is unconfigured, not
// an error, when no API key is set.
func (s *Services) NewSummarizer(ctx context.Context) (*summarizer.Service, error) {
	svc, err := summarizer.New(ctx, summarizer.Options{
		Provider:  s.Config.SummarizerProvider,
		Model:     s.Config.SummarizerModel,
		APIKey:    s.Config.SummarizerAPIKey(),
		MaxTokens: s.Config.SummarizerMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("NewSummarizer: %w", err)
	}
	if !svc.Configured() {
		s.Log.Warn().Str("provider", s.Config.SummarizerProvider).Msg("No summarizer API key set; /summarize will fail")
	}
	return svc, nil
}

// Close releases every client in reverse order of creation.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
