// Package snapshot pairs a similarity index with its metadata array and lets
// readers swap to a rebuilt pair without ever seeing a mixed one.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/recordstore"
	"github.com/dvloznov/ledger-search/internal/vectorindex"
)

// Snapshot is an immutable (index, metadata) pair. Ordinal i of Index is
// Records[i]. Callers must not modify Records.
type Snapshot struct {
	Index    *vectorindex.Index
	Records  []domain.Transaction
	BuildID  string
	LoadedAt time.Time
}

// New checks that idx and records describe the same build.
func New(idx *vectorindex.Index, records []domain.Transaction, buildID string) (*Snapshot, error) {
	if idx == nil {
		return nil, domain.ErrIndexNotFound
	}
	if idx.Len() != len(records) {
		return nil, fmt.Errorf("snapshot.New: index has %d vectors, metadata has %d records: %w",
			idx.Len(), len(records), domain.ErrArtifactMismatch)
	}
	return &Snapshot{Index: idx, Records: records, BuildID: buildID, LoadedAt: time.Now().UTC()}, nil
}

// Load reads both artifacts. Index failures wrap domain.ErrIndexNotFound and
// metadata failures (including invalid records) wrap domain.ErrMetadataNotFound.
// Artifacts of different lengths are domain.ErrArtifactMismatch.
func Load(indexPath, metadataPath string) (*Snapshot, error) {
	idx, err := vectorindex.Load(indexPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot.Load: %w", err)
	}

	records, err := recordstore.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot.Load: %s: %w: %w", metadataPath, domain.ErrMetadataNotFound, err)
	}
	if err := domain.ValidateTransactions(records); err != nil {
		return nil, fmt.Errorf("snapshot.Load: %s: %w: %w", metadataPath, domain.ErrMetadataNotFound, err)
	}
	return New(idx, records, buildIDFromStat(indexPath))
}

// buildIDFromStat labels on-disk artifacts by index modification time when
// the producing build id is unknown.
func buildIDFromStat(indexPath string) string {
	fi, err := os.Stat(indexPath)
	if err != nil {
		return ""
	}
	return "file@" + fi.ModTime().UTC().Format(time.RFC3339)
}

// Len returns the number of indexed records.
func (s *Snapshot) Len() int { return len(s.Records) }

// Holder publishes the current Snapshot to concurrent readers.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder returns a Holder, optionally seeded with an initial snapshot.
func NewHolder(initial *Snapshot) *Holder {
	h := &Holder{}
	if initial != nil {
		h.current.Store(initial)
	}
	return h
}

// Current returns the active snapshot or domain.ErrIndexNotFound before the
// first successful load.
func (h *Holder) Current() (*Snapshot, error) {
	s := h.current.Load()
	if s == nil {
		return nil, fmt.Errorf("no index loaded: %w", domain.ErrIndexNotFound)
	}
	return s, nil
}

// Swap installs s and returns the snapshot it replaced, which may be nil.
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	return h.current.Swap(s)
}

// Reload loads both artifacts from disk and swaps them in. On failure the
// current snapshot is left untouched.
func (h *Holder) Reload(indexPath, metadataPath string) (*Snapshot, error) {
	s, err := Load(indexPath, metadataPath)
	if err != nil {
		return nil, err
	}
	h.Swap(s)
	return s, nil
}

// IsUnavailable reports whether err means no usable artifacts exist.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrIndexNotFound) ||
		errors.Is(err, domain.ErrMetadataNotFound) ||
		errors.Is(err, domain.ErrArtifactMismatch)
}
