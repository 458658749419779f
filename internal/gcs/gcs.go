// Package gcs moves ledger files and index artifacts to and from Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// ErrObjectNotFound is returned when the referenced object does not exist.
var ErrObjectNotFound = errors.New("gcs: object not found")

// ObjectStore is the subset of storage operations the rest of the module needs.
// It enables swapping in a fake during tests.
type ObjectStore interface {
	// Download returns the bytes of the object at uri ("gs://bucket/object").
	Download(ctx context.Context, uri string) ([]byte, error)

	// Upload writes r to the object at uri with the given content type.
	Upload(ctx context.Context, uri string, r io.Reader, contentType string) error

	// Close releases the underlying client.
	Close() error
}

// Client is the Cloud Storage implementation of ObjectStore.
// It assumes Application Default Credentials are configured.
type Client struct {
	client *storage.Client
}

// NewClient creates a Client with a shared storage client.
func NewClient(ctx context.Context) (*Client, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewClient: create storage client: %w", err)
	}
	return &Client{client: c}, nil
}

// Close closes the storage client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Download implements ObjectStore.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("Download: %s: %w", uri, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Download: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Download: reading bytes: %w", err)
	}
	return data, nil
}

// Upload implements ObjectStore.
func (c *Client) Upload(ctx context.Context, uri string, r io.Reader, contentType string) error {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("Upload: copy to GCS writer: %w", err)
	}
	// Close finalizes the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalize upload: %w", err)
	}
	return nil
}

// UploadFile uploads a local file to uri.
func UploadFile(ctx context.Context, store ObjectStore, uri, filePath, contentType string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()
	return store.Upload(ctx, uri, f, contentType)
}

// DownloadFile writes the object at uri to filePath, replacing it atomically.
func DownloadFile(ctx context.Context, store ObjectStore, uri, filePath string) error {
	data, err := store.Download(ctx, uri)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("DownloadFile: create dir: %w", err)
	}
	tmp := filePath + ".download"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("DownloadFile: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("DownloadFile: rename into %q: %w", filePath, err)
	}
	return nil
}

// IsURI reports whether s looks like a "gs://" URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// JoinURI builds "gs://bucket/prefix/name".
func JoinURI(bucket string, elem ...string) string {
	return "gs://" + bucket + "/" + strings.TrimPrefix(path.Join(elem...), "/")
}

// Filename returns the last path element of a GCS URI.
// e.g., "gs://bucket/folder/file.json" → "file.json"
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

var _ ObjectStore = (*Client)(nil)
