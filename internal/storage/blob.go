// Package storage holds uploaded bytes between enqueue and conversion and
// copies converted files to S3 for users who opted in.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ah-its-andy/convertbot/internal/domain"
)

// DefaultFetchTimeout bounds reading one blob back.
const DefaultFetchTimeout = 30 * time.Second

// ErrBlobNotFound is returned for unknown or released handles.
var ErrBlobNotFound = &domain.Error{Kind: domain.NotFound, Op: "fetch", Message: "uploaded file is no longer available"}

// BlobStore keeps uploads as files named by a random handle.
type BlobStore struct {
	dir string
}

func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &BlobStore{dir: dir}, nil
}

// Dir returns the directory blobs are written to.
func (b *BlobStore) Dir() string {
	return b.dir
}

func (b *BlobStore) path(handle string) (string, error) {
	if _, err := uuid.Parse(handle); err != nil {
		return "", ErrBlobNotFound
	}
	return filepath.Join(b.dir, handle), nil
}

// Save copies r into a new blob. At most limit bytes are stored; a longer
// stream is rejected with SizeExceeded. limit <= 0 disables the check.
func (b *BlobStore) Save(r io.Reader, limit int64) (string, int64, error) {
	handle := uuid.New().String()
	p := filepath.Join(b.dir, handle)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create blob: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(p)
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}
	if limit > 0 && n > limit {
		os.Remove(p)
		return "", 0, domain.Errorf(domain.SizeExceeded, "save", "file is larger than %d bytes", limit)
	}
	return handle, n, nil
}

// Fetch reads the blob back. The read gives up when ctx is done.
func (b *BlobStore) Fetch(ctx context.Context, handle string) ([]byte, error) {
	p, err := b.path(handle)
	if err != nil {
		return nil, err
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := os.ReadFile(p)
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, domain.Wrap(domain.Internal, "fetch", ctx.Err())
	case r := <-ch:
		if errors.Is(r.err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		if r.err != nil {
			return nil, domain.Wrap(domain.Internal, "fetch", r.err)
		}
		return r.data, nil
	}
}

// Release deletes the blob. Unknown handles are ignored.
func (b *BlobStore) Release(handle string) error {
	p, err := b.path(handle)
	if err != nil {
		return nil
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CleanStale removes blobs older than retention. Handles present in inUse
// belong to a job that still exists and are kept whatever their age.
func (b *BlobStore) CleanStale(retention time.Duration, inUse map[string]bool) (int, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		log.Printf("[Janitor] blob cleanup error: %v", err)
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	cleaned := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil || inUse[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(b.dir, e.Name())); err != nil {
				log.Printf("[Janitor] failed to remove blob %s: %v", e.Name(), err)
			} else {
				cleaned++
			}
		}
	}

	if cleaned > 0 {
		log.Printf("[Janitor] cleaned up %d stale blobs", cleaned)
	}
	return cleaned, nil
}
