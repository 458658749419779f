package indexer

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-search/internal/jobs"
	"github.com/dvloznov/ledger-search/internal/logger"
	"github.com/dvloznov/ledger-search/internal/snapshot"
)

// SnapshotSwapper installs a freshly built snapshot. *snapshot.Holder
// satisfies it.
type SnapshotSwapper interface {
	Swap(s *snapshot.Snapshot) *snapshot.Snapshot
}

// RebuildJobHandler returns a jobs.JobHandler that runs a build and, on
// success, swaps the new artifacts in for readers. The served snapshot is
// left untouched when the build fails.
func RebuildJobHandler(b *Builder, swapper SnapshotSwapper) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.BuildIndexJob) error {
		log := logger.FromContext(ctx)

		res, err := b.Build(ctx)
		if err != nil {
			return fmt.Errorf("RebuildJobHandler: %w", err)
		}
		job.BuildID = res.BuildID
		job.Records = len(res.Records)

		snap, err := snapshot.New(res.Index, res.Records, res.BuildID)
		if err != nil {
			return fmt.Errorf("RebuildJobHandler: %w", err)
		}
		swapper.Swap(snap)

		log.Info().
			Str("job_id", job.JobID).
			Str("build_id", res.BuildID).
			Int("records", snap.Len()).
			Msg("Served index swapped")
		return nil
	}
}
