// Package filestore implements the key-value collaborator as one file per key
// under a state directory. Replacement is temp-file-plus-rename; exclusive
// creation is a hard link, which fails atomically if the target exists.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/episteme/internal/ports/secondary"
)

const tempPrefix = ".tmp-"

// KVStore implements secondary.KeyValueStore on the local filesystem.
type KVStore struct {
	root string
}

// NewKVStore creates a store rooted at dir, creating it if needed.
func NewKVStore(dir string) (*KVStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &KVStore{root: dir}, nil
}

var _ secondary.KeyValueStore = (*KVStore)(nil)

// Root returns the state directory.
func (s *KVStore) Root() string {
	return s.root
}

// Get reads the file for key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("key %s: %w", key, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes a temp file next to the target and renames it into place.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := s.writeTemp(path, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Create writes a temp file and hard-links it to the target. The link fails
// if the target exists, so exactly one concurrent creator wins.
func (s *KVStore) Create(ctx context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := s.writeTemp(path, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("key %s: %w", key, secondary.ErrExists)
		}
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	return nil
}

// List walks the directory named by prefix. A missing directory is an empty list.
func (s *KVStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir := s.root
	if p := strings.Trim(prefix, "/"); p != "" {
		var err error
		if dir, err = s.path(p); err != nil {
			return nil, err
		}
	}

	var keys []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *KVStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." || strings.HasPrefix(part, tempPrefix) {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *KVStore) writeTemp(target string, value []byte) (string, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(value); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
