// Package blobstore stores clinical attachments (radiographs, photos, scanned
// documents) under collision-resistant names. It provides a disk-backed
// store for production and an in-memory store for tests.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dentaleditapp/tdeclinic-emr/internal/platform/idgen"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrNotFound            = errors.New("file not found")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrDisallowedExtension = errors.New("file type is not allowed")
	ErrInvalidName         = errors.New("invalid file name")
)

// DefaultMaxSize bounds a single upload (16 MB).
const DefaultMaxSize = 16 * 1024 * 1024

// AllowedExtensions is the attachment allow-list, compared case-insensitively.
var AllowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"pdf":  true,
}

// CheckExtension rejects names whose extension is not allow-listed.
func CheckExtension(name string) error {
	if !AllowedExtensions[idgen.Ext(name)] {
		return fmt.Errorf("%w: %q", ErrDisallowedExtension, name)
	}
	return nil
}

// validName accepts only bare file names, never paths.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// FileStore interface
// ---------------------------------------------------------------------------

// FileStore is the contract for attachment storage backends.
type FileStore interface {
	Save(ctx context.Context, name string, content io.Reader) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
}

// ---------------------------------------------------------------------------
// Disk implementation
// ---------------------------------------------------------------------------

// DiskStore keeps files flat in one upload directory.
type DiskStore struct {
	dir     string
	maxSize int64
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, maxSize: maxSize}, nil
}

func (s *DiskStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Save writes content to name. A partially written file is removed on
// failure.
func (s *DiskStore) Save(_ context.Context, name string, content io.Reader) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}

	n, err := io.Copy(f, io.LimitReader(content, s.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxSize {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(s.path(name))
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}

func (s *DiskStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Remove deletes name. A missing file is not an error.
func (s *DiskStore) Remove(_ context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (s *DiskStore) Exists(_ context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// InMemoryStore is a thread-safe FileStore for tests. Names listed in
// FailRemove return the mapped error from Remove.
type InMemoryStore struct {
	mu         sync.RWMutex
	files      map[string][]byte
	FailRemove map[string]error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{files: make(map[string][]byte), FailRemove: make(map[string]error)}
}

func (s *InMemoryStore) Save(_ context.Context, name string, content io.Reader) (int64, error) {
	if err := validName(name); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(io.LimitReader(content, DefaultMaxSize+1))
	if err != nil {
		return 0, fmt.Errorf("read content: %w", err)
	}
	if len(data) > DefaultMaxSize {
		return 0, ErrFileTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; ok {
		return 0, fmt.Errorf("create %s: %w", name, os.ErrExist)
	}
	s.files[name] = data
	return int64(len(data)), nil
}

func (s *InMemoryStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.files[name]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *InMemoryStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailRemove[name]; err != nil {
		return err
	}
	delete(s.files, name)
	return nil
}

func (s *InMemoryStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[name]
	return ok, nil
}

// Names lists stored names in order.
func (s *InMemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.files))
	for n := range s.files {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ContentType guesses the media type served for a stored file name.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(strings.ToLower(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
