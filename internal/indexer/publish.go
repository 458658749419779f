package indexer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dvloznov/ledger-search/internal/gcs"
)

const latestPrefix = "latest"

// Publisher mirrors build artifacts to a bucket, once under the build id and
// once under "latest".
type Publisher struct {
	store  gcs.ObjectStore
	bucket string
	prefix string
}

// NewPublisher creates a Publisher writing to gs://bucket/prefix/.
func NewPublisher(store gcs.ObjectStore, bucket, prefix string) *Publisher {
	return &Publisher{store: store, bucket: bucket, prefix: prefix}
}

// Publish uploads both artifacts and returns the object URIs written.
func (p *Publisher) Publish(ctx context.Context, buildID, indexPath, metadataPath string) ([]string, error) {
	var uris []string
	for _, dir := range []string{buildID, latestPrefix} {
		for _, f := range []struct{ path, contentType string }{
			{indexPath, "application/octet-stream"},
			{metadataPath, "application/json"},
		} {
			uri := gcs.JoinURI(p.bucket, p.prefix, dir, filepath.Base(f.path))
			if err := gcs.UploadFile(ctx, p.store, uri, f.path, f.contentType); err != nil {
				return uris, fmt.Errorf("Publish: %s: %w", uri, err)
			}
			uris = append(uris, uri)
		}
	}
	return uris, nil
}

// FetchLatest downloads the "latest" artifacts into indexPath and
// metadataPath. The object names are the local file names.
func (p *Publisher) FetchLatest(ctx context.Context, indexPath, metadataPath string) error {
	return p.Fetch(ctx, latestPrefix, indexPath, metadataPath)
}

// Fetch downloads the artifacts of one build (or "latest").
func (p *Publisher) Fetch(ctx context.Context, buildID, indexPath, metadataPath string) error {
	for _, path := range []string{indexPath, metadataPath} {
		uri := gcs.JoinURI(p.bucket, p.prefix, buildID, filepath.Base(path))
		if err := gcs.DownloadFile(ctx, p.store, uri, path); err != nil {
			return fmt.Errorf("Fetch: %s: %w", uri, err)
		}
	}
	return nil
}
