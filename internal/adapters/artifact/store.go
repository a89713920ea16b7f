// Package artifact stores trained model artifacts on the local filesystem.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/okian/boxoffice/internal/domain/revenue"
	"github.com/okian/boxoffice/pkg/metrics"
)

const defaultRetryDelay = 50 * time.Millisecond

// Sentinel kinds for artifact store errors.
var (
	ErrNotFound = errors.New("artifact not found")
	ErrLocked   = errors.New("artifact is locked")
)

// FileStore keeps one artifact at a fixed path. Writers hold an exclusive
// lock on a sidecar file and replace the artifact by rename, so readers see
// either the old artifact or the new one.
type FileStore struct {
	path       string
	lockPath   string
	retryDelay time.Duration
}

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithRetryDelay sets how often a blocked lock is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(s *FileStore) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// NewFileStore returns a store for the artifact at path.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{
		path:       path,
		lockPath:   path + ".lock",
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the artifact path.
func (s *FileStore) Path() string { return s.path }

// Save writes a, replacing any previous artifact.
func (s *FileStore) Save(ctx context.Context, a *revenue.Artifact) (err error) {
	start := time.Now()
	defer func() { metrics.RecordArtifactIOLatency("save", float64(time.Since(start).Milliseconds())) }()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}
	lock := flock.New(s.lockPath)
	ok, err := lock.TryLockContext(ctx, s.retryDelay)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLocked, err)
	}
	if !ok {
		return ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = revenue.Encode(tmp, a); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

// Load reads and validates the stored artifact.
func (s *FileStore) Load(ctx context.Context) (*revenue.Artifact, error) {
	start := time.Now()
	defer func() { metrics.RecordArtifactIOLatency("load", float64(time.Since(start).Milliseconds())) }()

	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	lock := flock.New(s.lockPath)
	ok, err := lock.TryRLockContext(ctx, s.retryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocked, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	a, err := revenue.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return a, nil
}
