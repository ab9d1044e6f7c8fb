package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes artifact blobs by location.
type Store interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Create(ctx context.Context, location string) (io.WriteCloser, error)
}

// FileStore keeps artifacts on the local filesystem.
type FileStore struct{}

func (FileStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	return os.Open(location)
}

func (FileStore) Create(_ context.Context, location string) (io.WriteCloser, error) {
	if dir := filepath.Dir(location); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(location)
}

// IsRemote reports whether a location points at S3.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// Router dispatches s3:// locations to an S3 store and everything else to
// the local filesystem.
type Router struct {
	Local  Store
	Remote Store
}

func (r Router) pick(location string) (Store, error) {
	if IsRemote(location) {
		if r.Remote == nil {
			return nil, fmt.Errorf("no S3 store configured for %s", location)
		}
		return r.Remote, nil
	}
	if r.Local == nil {
		return FileStore{}, nil
	}
	return r.Local, nil
}

func (r Router) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	s, err := r.pick(location)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, location)
}

func (r Router) Create(ctx context.Context, location string) (io.WriteCloser, error) {
	s, err := r.pick(location)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, location)
}
