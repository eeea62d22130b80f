package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const CurrentFileVersion = 1

// fileData is the root structure persisted in the state file.
type fileData struct {
	Version      int                        `json:"version"`
	LastDumpTime int64                      `json:"last_dump_time"`
	Entries      map[string]json.RawMessage `json:"entries"`
}

// FileStore persists values as entries of a single JSON file, rewritten
// atomically on every Put. Conditional writes are serialized within the
// process only.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

// NewFileStore opens the store at filePath, migrating older file layouts.
// A missing file is created on the first write.
func NewFileStore(filePath string, defaultKey string) (*FileStore, error) {
	if err := MigrateStateFile(filePath, defaultKey); err != nil {
		return nil, fmt.Errorf("migrate state file: %w", err)
	}
	return &FileStore{filePath: filePath}, nil
}

func (fs *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fd, err := fs.load()
	if err != nil {
		return nil, err
	}
	v, ok := fd.Entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(v), nil
}

func (fs *FileStore) Put(_ context.Context, key string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.write(key, value)
}

func (fs *FileStore) PutIf(_ context.Context, key string, prev, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fd, err := fs.load()
	if err != nil {
		return err
	}
	cur, ok := fd.Entries[key]
	if ok != (prev != nil) || !bytes.Equal(cur, prev) {
		return ErrConflict
	}
	return fs.write(key, value)
}

func (fs *FileStore) Close() error { return nil }

// write must be called with mu held.
func (fs *FileStore) write(key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}
	fd, err := fs.load()
	if err != nil {
		// An unreadable file is replaced rather than blocking all future writes.
		slog.Warn("state file unreadable, rewriting", "path", fs.filePath, "error", err)
		fd = fileData{Entries: make(map[string]json.RawMessage)}
	}
	fd.Version = CurrentFileVersion
	fd.LastDumpTime = time.Now().Unix()
	fd.Entries[key] = json.RawMessage(bytes.Clone(value))

	if err := atomicWriteJSON(fs.filePath, fd); err != nil {
		return fmt.Errorf("dump state file: %w", err)
	}
	return nil
}

func (fs *FileStore) load() (fileData, error) {
	fd := fileData{Entries: make(map[string]json.RawMessage)}

	data, err := os.ReadFile(fs.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return fd, nil
	}
	if err != nil {
		return fd, err
	}

	if err := json.Unmarshal(data, &fd); err != nil {
		return fileData{Entries: make(map[string]json.RawMessage)}, fmt.Errorf("parse state file: %w", err)
	}
	if fd.Entries == nil {
		fd.Entries = make(map[string]json.RawMessage)
	}
	return fd, nil
}

// atomicWriteJSON writes data as JSON to a file atomically.
func atomicWriteJSON(filePath string, data interface{}) error {
	bs, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(bs); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	tmp = nil

	return os.Rename(tmpName, filePath)
}
