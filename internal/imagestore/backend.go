package imagestore

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mycolog/mycolog/internal/errors"
)

// Backend stores encoded image bytes under a flat key.
type Backend interface {
	// Put writes data under key and returns the URI the image is reachable at.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Open reads the image behind key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Key maps a URI produced by Put back to its key.
	Key(uri string) (string, error)
	Driver() string
}

func backendError(err error, driver, op, key string) error {
	return errors.New(err).
		Component(component).
		Category(errors.CategoryImageStore).
		Context("driver", driver).
		Context("operation", op).
		Context("key", key).
		Build()
}

func foreignURI(uri, driver string) error {
	return errors.Validationf("image uri %q does not belong to the %s store", uri, driver)
}

// MemoryBackend keeps images in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

const memScheme = "mem://"

func (m *MemoryBackend) Put(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	m.objects[key] = bytes.Clone(data)
	m.mu.Unlock()
	return memScheme + key, nil
}

func (m *MemoryBackend) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("image", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Key(uri string) (string, error) {
	key, ok := strings.CutPrefix(uri, memScheme)
	if !ok || key == "" {
		return "", foreignURI(uri, m.Driver())
	}
	return key, nil
}

func (m *MemoryBackend) Driver() string { return "memory" }

// FSBackend writes images as files in one directory.
type FSBackend struct {
	dir string
}

// NewFSBackend creates dir if needed. The directory is made absolute so the
// file:// URIs it hands out stay valid from any working directory.
func NewFSBackend(dir string) (*FSBackend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, backendError(err, "fs", "init", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, backendError(err, "fs", "init", dir)
	}
	return &FSBackend{dir: abs}, nil
}

const fileScheme = "file://"

func (f *FSBackend) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", errors.Validationf("invalid image key %q", key)
	}
	return filepath.Join(f.dir, key), nil
}

func (f *FSBackend) Put(_ context.Context, key string, data []byte) (string, error) {
	p, err := f.path(key)
	if err != nil {
		return "", err
	}
	// O_EXCL keeps two saves in the same nanosecond from overwriting each other
	file, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", backendError(err, f.Driver(), "put", key)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(p)
		return "", backendError(err, f.Driver(), "put", key)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(p)
		return "", backendError(err, f.Driver(), "put", key)
	}
	return fileScheme + filepath.ToSlash(p), nil
}

func (f *FSBackend) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NotFound("image", key)
	}
	if err != nil {
		return nil, backendError(err, f.Driver(), "open", key)
	}
	return file, nil
}

func (f *FSBackend) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return backendError(err, f.Driver(), "delete", key)
	}
	return nil
}

func (f *FSBackend) Key(uri string) (string, error) {
	p, ok := strings.CutPrefix(uri, fileScheme)
	if !ok {
		return "", foreignURI(uri, f.Driver())
	}
	p = filepath.FromSlash(p)
	if filepath.Dir(p) != f.dir {
		return "", foreignURI(uri, f.Driver())
	}
	return filepath.Base(p), nil
}

func (f *FSBackend) Driver() string { return "fs" }
