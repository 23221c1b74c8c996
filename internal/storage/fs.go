package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fsSuffix = ".lz"

// FileSystemAdapter stores one file per key. Persistent scopes live under
// the data directory and are guarded by an exclusive lock file for the
// lifetime of the handle; session scopes live in a private temporary
// directory removed on Close.
type FileSystemAdapter struct {
	dir   string
	quota int
}

// NewFileSystemAdapter returns an adapter rooted at dir, or at the default
// data directory when dir is empty. A positive quota bounds the encoded size
// of each value.
func NewFileSystemAdapter(dir string, quota int) *FileSystemAdapter {
	return &FileSystemAdapter{dir: dir, quota: quota}
}

// Name implements Adapter.
func (a *FileSystemAdapter) Name() string { return "fs" }

// Init implements Adapter.
func (a *FileSystemAdapter) Init(namespace string) bool {
	h, err := a.Create(namespace, true)
	if err != nil {
		return false
	}
	defer h.Close()
	return probe(h) == nil
}

// Create implements Adapter.
func (a *FileSystemAdapter) Create(namespace string, persistent bool) (Handle, error) {
	if namespace == "" {
		return nil, fmt.Errorf("fs: namespace cannot be empty")
	}
	prefix := Prefix(namespace, persistent)

	m := &fsMedium{prefix: prefix}
	if persistent {
		root, err := resolveDir(a.dir)
		if err != nil {
			return nil, fmt.Errorf("fs: %w", err)
		}
		m.dir = filepath.Join(root, scopeDirName(prefix))
		if err := os.MkdirAll(m.dir, 0755); err != nil {
			return nil, fmt.Errorf("fs: failed to create directory: %w", err)
		}
		lock, ok, err := AcquireLockHandle(m.dir + ".lock")
		if err != nil {
			return nil, fmt.Errorf("fs: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("fs: %s is in use by another process: %w", m.dir, ErrWouldBlock)
		}
		m.lock = lock
	} else {
		dir, err := os.MkdirTemp("", "turnkeeper-session-*")
		if err != nil {
			return nil, fmt.Errorf("fs: failed to create session directory: %w", err)
		}
		m.dir = dir
		m.temporary = true
	}
	return newHandle(a.Name(), namespace, persistent, UTF16Codec{}, a.quota, m), nil
}

type fsMedium struct {
	dir       string
	prefix    string
	lock      *os.File
	temporary bool
}

func (m *fsMedium) path(key string) string {
	return filepath.Join(m.dir, escapeName(strings.TrimPrefix(key, m.prefix))+fsSuffix)
}

func (m *fsMedium) read(key string) (string, bool, error) {
	data, err := os.ReadFile(m.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

func (m *fsMedium) write(key, text string) error {
	return AtomicWriteFile(m.path(key), []byte(text), 0644)
}

func (m *fsMedium) remove(key string) error {
	if err := os.Remove(m.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (m *fsMedium) list(prefix string) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fsSuffix) {
			continue
		}
		key, err := unescapeName(strings.TrimSuffix(name, fsSuffix))
		if err != nil {
			continue
		}
		if full := m.prefix + key; strings.HasPrefix(full, prefix) {
			keys = append(keys, full)
		}
	}
	return keys, nil
}

func (m *fsMedium) close() error {
	var errs []error
	if m.lock != nil {
		errs = append(errs, releaseFileLock(m.lock))
		m.lock = nil
	}
	if m.temporary {
		errs = append(errs, os.RemoveAll(m.dir))
	}
	return errors.Join(errs...)
}

var _ Adapter = (*FileSystemAdapter)(nil)
