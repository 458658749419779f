package indexer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-search/internal/jobs"
	"github.com/dvloznov/ledger-search/internal/logger"
	"github.com/dvloznov/ledger-search/internal/recordstore"
	"github.com/dvloznov/ledger-search/internal/snapshot"
)

func quietContext() context.Context {
	return logger.WithContext(context.Background(), zerolog.Nop())
}

func TestRebuildJobHandler_SwapsSnapshot(t *testing.T) {
	f := newFixture(t)
	holder := snapshot.NewHolder(nil)

	job := &jobs.BuildIndexJob{JobID: "job-1"}
	require.NoError(t, RebuildJobHandler(f.builder(), holder)(quietContext(), job))

	snap, err := holder.Current()
	require.NoError(t, err)
	assert.Equal(t, len(f.records), snap.Len())
	assert.Equal(t, snap.BuildID, job.BuildID)
	assert.Equal(t, len(f.records), job.Records)
}

func TestRebuildJobHandler_KeepsSnapshotOnFailure(t *testing.T) {
	f := newFixture(t)

	_, err := f.builder().Build(context.Background())
	require.NoError(t, err)
	holder := snapshot.NewHolder(nil)
	before, err := holder.Reload(f.indexPath, f.metaPath)
	require.NoError(t, err)

	require.NoError(t, recordstore.WriteFile(f.ledger, nil))
	err = RebuildJobHandler(f.builder(), holder)(quietContext(), &jobs.BuildIndexJob{JobID: "job-2"})
	require.Error(t, err)

	after, err := holder.Current()
	require.NoError(t, err)
	assert.Same(t, before, after)
}
