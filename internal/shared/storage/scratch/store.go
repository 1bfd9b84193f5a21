package scratch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"catastro-backend/internal/shared/metrics"
)

var removeFile = os.Remove

// ErrLimitExceeded is returned by Acquire when the reader holds more than the limit.
var ErrLimitExceeded = errors.New("scratch: size limit exceeded")

// Store hands out request-scoped temporary files under a shared directory.
// File names never derive from caller input, so concurrent requests cannot collide.
type Store struct {
	dir    string
	prefix string
	ext    string
	active atomic.Int64
}

// New creates a Store rooted at dir. The directory is created on first use.
func New(dir, prefix, ext string) *Store {
	if prefix == "" {
		prefix = "scratch"
	}
	return &Store{dir: dir, prefix: prefix, ext: ext}
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

// Active returns the number of files acquired and not yet released.
func (s *Store) Active() int64 { return s.active.Load() }

// Acquire writes r to a new uniquely-named file. At most limit bytes are
// accepted; a larger payload removes the file and returns ErrLimitExceeded.
// A limit <= 0 disables the check.
func (s *Store) Acquire(ctx context.Context, r io.Reader, limit int64) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	name := fmt.Sprintf("%s_%d_%s%s", s.prefix, time.Now().UTC().UnixNano(), uuid.NewString(), s.ext)
	fullPath := filepath.Join(s.dir, name)
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	file := &File{path: fullPath, store: s}
	s.active.Add(1)
	metrics.ScratchFileAcquired()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = file.Release()
		return nil, fmt.Errorf("write body: %w", copyErr)
	case closeErr != nil:
		_ = file.Release()
		return nil, fmt.Errorf("close file: %w", closeErr)
	case limit > 0 && written > limit:
		_ = file.Release()
		return nil, ErrLimitExceeded
	}
	file.size = written
	return file, nil
}

// File is a temporary file owned by a single request.
type File struct {
	path  string
	size  int64
	store *Store

	mu       sync.Mutex
	released bool
}

// Path returns the on-disk location of the file.
func (f *File) Path() string { return f.path }

// Size returns the number of bytes written.
func (f *File) Size() int64 { return f.size }

// Open opens the file for reading.
func (f *File) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Release deletes the file. It is safe to call more than once and from
// several goroutines. The file counts as active until the remove succeeds
// or finds it already gone, so a failed Release can be retried.
func (f *File) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	if err := removeFile(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(f.path), err)
	}
	f.released = true
	f.store.active.Add(-1)
	metrics.ScratchFileReleased()
	return nil
}
