package kvstore

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/mycolog/mycolog/internal/errors"
)

const fileSuffix = ".kv"

// FileStore keeps one file per key under a root directory. Writes go to a
// temp file that is synced and renamed over the target, so a reader sees
// either the old or the new value, never a torn one.
type FileStore struct {
	root string
}

// NewFile returns a store rooted at dir, creating the directory if needed.
func NewFile(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, persistenceError(errors.NewStd("empty root directory"), "file", "open", "")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, persistenceError(err, "file", "open", "")
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) Driver() string { return "file" }

// pathFor maps a key to a file name that cannot escape root.
func (s *FileStore) pathFor(op, key string) (string, error) {
	if err := validateKey(s.Driver(), op, key); err != nil {
		return "", err
	}
	name := url.PathEscape(key)
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", persistenceError(errors.Newf("invalid key %q", key).Build(), s.Driver(), op, key)
	}
	return filepath.Join(s.root, name+fileSuffix), nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	path, err := s.pathFor("get", key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, persistenceError(err, s.Driver(), "get", key)
	}
	return string(data), true, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	path, err := s.pathFor("set", key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return persistenceError(err, s.Driver(), "set", key)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return persistenceError(err, s.Driver(), "set", key)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return persistenceError(err, s.Driver(), "set", key)
	}
	if err := tmp.Close(); err != nil {
		return persistenceError(err, s.Driver(), "set", key)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return persistenceError(err, s.Driver(), "set", key)
	}
	return nil
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	path, err := s.pathFor("remove", key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistenceError(err, s.Driver(), "remove", key)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
