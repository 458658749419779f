package indexer

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/recordstore"
	"github.com/dvloznov/ledger-search/internal/vectorindex"
)

// BuildStep represents a single step of an index build.
type BuildStep interface {
	Execute(ctx context.Context, state *BuildState) error
}

// BuildStepFunc adapts a function to BuildStep.
type BuildStepFunc func(ctx context.Context, state *BuildState) error

// Execute implements BuildStep.
func (f BuildStepFunc) Execute(ctx context.Context, state *BuildState) error { return f(ctx, state) }

// BuildState holds the shared state across all build steps.
type BuildState struct {
	BuildID string
	Records []domain.Transaction
	Vectors [][]float32
	Index   *vectorindex.Index
	// Published lists the object URIs written by the publish step.
	Published []string
}

// Step 1: StartRunStep records a RUNNING build in the build ledger.
type StartRunStep struct{ b *Builder }

func (s *StartRunStep) Execute(ctx context.Context, state *BuildState) error {
	id, err := s.b.recorder.StartRun(ctx, s.b.sourceName)
	if err != nil {
		return err
	}
	state.BuildID = id
	return nil
}

// Step 2: LoadRecordsStep reads and validates the full ledger.
type LoadRecordsStep struct{ b *Builder }

func (s *LoadRecordsStep) Execute(ctx context.Context, state *BuildState) error {
	store, err := recordstore.Load(ctx, s.b.source)
	if err != nil {
		return err
	}
	if store.Len() == 0 {
		return fmt.Errorf("LoadRecords: ledger %s is empty", s.b.sourceName)
	}
	state.Records = store.Records()
	return nil
}

// Step 3: EmbedRecordsStep embeds each record's canonical text.
type EmbedRecordsStep struct{ b *Builder }

func (s *EmbedRecordsStep) Execute(ctx context.Context, state *BuildState) error {
	vecs, err := EmbedRecords(ctx, s.b.embedder, state.Records)
	if err != nil {
		return err
	}
	state.Vectors = vecs
	return nil
}

// Step 4: BuildIndexStep adds the vectors to a fresh index in record order.
type BuildIndexStep struct{}

func (s *BuildIndexStep) Execute(ctx context.Context, state *BuildState) error {
	if len(state.Vectors) != len(state.Records) {
		return fmt.Errorf("BuildIndex: %d vectors for %d records: %w",
			len(state.Vectors), len(state.Records), domain.ErrArtifactMismatch)
	}
	idx, err := vectorindex.New(len(state.Vectors[0]))
	if err != nil {
		return fmt.Errorf("BuildIndex: %w", err)
	}
	if err := idx.Add(state.Vectors...); err != nil {
		return fmt.Errorf("BuildIndex: %w", err)
	}
	state.Index = idx
	return nil
}

// Step 5: PersistArtifactsStep writes the index and the metadata array.
type PersistArtifactsStep struct{ b *Builder }

func (s *PersistArtifactsStep) Execute(ctx context.Context, state *BuildState) error {
	if err := state.Index.Save(s.b.indexPath); err != nil {
		return fmt.Errorf("PersistArtifacts: %w", err)
	}
	if err := recordstore.WriteFile(s.b.metadataPath, state.Records); err != nil {
		return fmt.Errorf("PersistArtifacts: %w", err)
	}
	return nil
}

// Step 6: PublishArtifactsStep mirrors both artifacts to Cloud Storage.
type PublishArtifactsStep struct{ b *Builder }

func (s *PublishArtifactsStep) Execute(ctx context.Context, state *BuildState) error {
	uris, err := s.b.publisher.Publish(ctx, state.BuildID, s.b.indexPath, s.b.metadataPath)
	if err != nil {
		return err
	}
	state.Published = uris
	return nil
}

// Step 7: MarkSuccessStep marks the build as SUCCESS.
type MarkSuccessStep struct{ b *Builder }

func (s *MarkSuccessStep) Execute(ctx context.Context, state *BuildState) error {
	return s.b.recorder.MarkRunSucceeded(ctx, state.BuildID, state.Index.Len(), state.Index.Dim())
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []BuildStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...BuildStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *BuildState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("build step %d cancelled: %w", i+1, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("build step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// EmbedRecords returns one unit vector per record, in record order.
func EmbedRecords(ctx context.Context, embedder TextEmbedder, records []domain.Transaction) ([][]float32, error) {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = domain.CanonicalText(r)
	}
	vecs, err := embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("EmbedRecords: %w", err)
	}
	return vecs, nil
}
