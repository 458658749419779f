package buildlog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "builds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.StartRun(ctx, "data/transactions.json")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, s.MarkRunSucceeded(ctx, id, 600, 256))

	run, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, run.Status)
	assert.Equal(t, 600, run.Records)
	assert.Equal(t, 256, run.Dimension)
	require.NotNil(t, run.FinishedAt)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestMarkRunFailed_TruncatesError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.StartRun(ctx, "gs://ledger/transactions.json")
	require.NoError(t, err)

	s.MarkRunFailed(ctx, id, errors.New(strings.Repeat("x", 5000)))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Len(t, run.Error, maxErrorLen)
}

func TestMarkRunFailed_TruncatesOnRuneBoundary(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.StartRun(ctx, "data/transactions.json")
	require.NoError(t, err)

	// "₹" is three bytes, so the byte limit falls inside a rune.
	s.MarkRunFailed(ctx, id, errors.New("x"+strings.Repeat("₹", 1000)))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(run.Error))
	assert.LessOrEqual(t, len(run.Error), maxErrorLen)
	assert.Len(t, run.Error, maxErrorLen-1)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab", truncate("ab₹", 4))
	assert.Equal(t, "ab₹", truncate("ab₹", 5))
	assert.Equal(t, "", truncate("₹", 2))
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.MarkRunSucceeded(ctx, "missing", 1, 1), ErrRunNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.StartRun(ctx, "src")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].BuildID)
	assert.Equal(t, ids[0], runs[2].BuildID)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "builds.db")

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.StartRun(ctx, "src")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "src", run.Source)
}
