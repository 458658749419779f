package app

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-search/internal/buildlog"
	"github.com/dvloznov/ledger-search/internal/config"
	"github.com/dvloznov/ledger-search/internal/datagen"
	"github.com/dvloznov/ledger-search/internal/recordstore"
	"github.com/dvloznov/ledger-search/internal/snapshot"
)

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	return config.Config{
		TransactionsURI:     filepath.Join(dir, "data", "transactions.json"),
		IndexPath:           filepath.Join(dir, "embeddings", "index.lsix"),
		MetadataPath:        filepath.Join(dir, "embeddings", "metadata.json"),
		BuildLogPath:        filepath.Join(dir, "embeddings", "builds.db"),
		EmbedderProvider:    "hash",
		EmbedderDimension:   64,
		EmbedBatchSize:      16,
		EmbedParallelism:    2,
		SummarizerProvider:  "openai",
		SummarizerMaxTokens: 200,
	}
}

func TestServices_BuildAndLoad(t *testing.T) {
	cfg := testConfig(t)
	records := datagen.Generate("user_1", 30, datagen.DefaultStart, rand.New(rand.NewSource(5)))
	require.NoError(t, recordstore.WriteFile(cfg.TransactionsURI, records))

	ctx := context.Background()
	svc, err := New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()
	require.NotNil(t, svc.BuildLog)
	assert.Nil(t, svc.Publisher)

	builder, err := svc.NewBuilder(ctx)
	require.NoError(t, err)
	res, err := builder.Build(ctx)
	require.NoError(t, err)

	snap, err := snapshot.Load(cfg.IndexPath, cfg.MetadataPath)
	require.NoError(t, err)
	assert.Equal(t, len(records), snap.Len())
	assert.Equal(t, 64, snap.Index.Dim())

	run, err := svc.BuildLog.GetRun(ctx, res.BuildID)
	require.NoError(t, err)
	assert.Equal(t, buildlog.StatusSuccess, run.Status)
	assert.Equal(t, len(records), run.Records)
}

func TestServices_UnconfiguredSummarizer(t *testing.T) {
	cfg := testConfig(t)
	cfg.BuildLogPath = ""

	svc, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer svc.Close()
	assert.Nil(t, svc.BuildLog)

	sum, err := svc.NewSummarizer(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.Configured())
}

func TestServices_UnknownEmbedder(t *testing.T) {
	cfg := testConfig(t)
	cfg.EmbedderProvider = "word2vec"
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
