// Package indexer turns the transaction ledger into a persisted
// (similarity index, metadata) artifact pair.
package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-search/internal/buildlog"
	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/recordstore"
	"github.com/dvloznov/ledger-search/internal/vectorindex"
)

// TextEmbedder yields one unit vector per text, in input order.
// *embedding.Cache satisfies it.
type TextEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// Config names the artifacts a build writes.
type Config struct {
	IndexPath    string
	MetadataPath string
	// SourceName is recorded in the build ledger; typically the transactions URI.
	SourceName string
}

// Result is a completed build. Index and Records are aligned by ordinal.
type Result struct {
	BuildID   string
	Index     *vectorindex.Index
	Records   []domain.Transaction
	Published []string
	Duration  time.Duration
}

// Builder runs index builds. A Builder may be reused; each Build reads the
// source afresh. Builds on one Builder run one at a time, so concurrent
// callers never interleave writes to the same artifact paths.
type Builder struct {
	mu sync.Mutex

	source       recordstore.Source
	embedder     TextEmbedder
	indexPath    string
	metadataPath string
	sourceName   string
	recorder     buildlog.Recorder
	publisher    *Publisher
	log          zerolog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithRecorder records every build in the build ledger.
func WithRecorder(r buildlog.Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithPublisher mirrors artifacts to Cloud Storage after they are written.
func WithPublisher(p *Publisher) Option {
	return func(b *Builder) { b.publisher = p }
}

// WithLogger sets the builder logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Builder) { b.log = log }
}

// New creates a Builder.
func New(source recordstore.Source, embedder TextEmbedder, cfg Config, opts ...Option) *Builder {
	b := &Builder{
		source:       source,
		embedder:     embedder,
		indexPath:    cfg.IndexPath,
		metadataPath: cfg.MetadataPath,
		sourceName:   cfg.SourceName,
		recorder:     nopRecorder{},
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) pipeline() *Pipeline {
	steps := []BuildStep{
		&StartRunStep{b},
		&LoadRecordsStep{b},
		&EmbedRecordsStep{b},
		&BuildIndexStep{},
		&PersistArtifactsStep{b},
	}
	if b.publisher != nil {
		steps = append(steps, &PublishArtifactsStep{b})
	}
	steps = append(steps, &MarkSuccessStep{b})
	return NewPipeline(steps...)
}

// Build reads every record, embeds it, builds the index and writes both
// artifacts, overwriting any previous build at the same paths.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	started := time.Now()
	state := &BuildState{}

	if err := b.pipeline().Execute(ctx, state); err != nil {
		if state.BuildID != "" {
			b.recorder.MarkRunFailed(ctx, state.BuildID, err)
		}
		b.log.Error().Err(err).Str("build_id", state.BuildID).Msg("Index build failed")
		return nil, err
	}

	res := &Result{
		BuildID:   state.BuildID,
		Index:     state.Index,
		Records:   state.Records,
		Published: state.Published,
		Duration:  time.Since(started),
	}
	b.log.Info().
		Str("build_id", res.BuildID).
		Int("records", res.Index.Len()).
		Int("dim", res.Index.Dim()).
		Str("index_path", b.indexPath).
		Str("metadata_path", b.metadataPath).
		Dur("duration", res.Duration).
		Msg("Index build complete")
	return res, nil
}

// nopRecorder hands out build ids without persisting anything.
type nopRecorder struct{}

func (nopRecorder) StartRun(ctx context.Context, source string) (string, error) {
	return uuid.NewString(), nil
}

func (nopRecorder) MarkRunSucceeded(ctx context.Context, buildID string, records, dimension int) error {
	return nil
}

func (nopRecorder) MarkRunFailed(ctx context.Context, buildID string, buildErr error) {}
