package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const storeFileName = "store.json"

// FileStore keeps every key in one JSON document on disk and rewrites it on
// each change.
type FileStore struct {
	filePath string
	entries  map[string]json.RawMessage
	mu       sync.RWMutex
}

// NewFileStore opens (or creates) the store file under dataDir.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fs := &FileStore{
		filePath: filepath.Join(dataDir, storeFileName),
		entries:  make(map[string]json.RawMessage),
	}

	if err := fs.load(); err != nil {
		return nil, fmt.Errorf("failed to load store data: %w", err)
	}

	return fs, nil
}

func (fs *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	v, ok := fs.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (fs *FileStore) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %s is not valid JSON", key)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	v := make(json.RawMessage, len(value))
	copy(v, value)
	fs.entries[key] = v
	return fs.save()
}

func (fs *FileStore) Remove(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.entries[key]; !ok {
		return nil
	}
	delete(fs.entries, key)
	return fs.save()
}

func (fs *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var keys []string
	for k := range fs.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// load reads the entries from the JSON file
func (fs *FileStore) load() error {
	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open store file: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&fs.entries); err != nil {
		return fmt.Errorf("failed to decode store data: %w", err)
	}
	if fs.entries == nil {
		fs.entries = make(map[string]json.RawMessage)
	}
	return nil
}

// save writes the entries to a temp file and renames it over the store file
func (fs *FileStore) save() error {
	tmp, err := os.CreateTemp(filepath.Dir(fs.filePath), storeFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fs.entries); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode store data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store data: %w", err)
	}
	return os.Rename(tmp.Name(), fs.filePath)
}
