package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Collection names used for durable storage.
const (
	CollectionSubscriptions = "subscriptions"
	CollectionNotifications = "notifications"
)

// Backend persists a named collection as one JSON document. Every mutation
// rewrites the collection wholesale; there is no incremental journal.
type Backend interface {
	// Load reads the named collection into v. A missing collection is not
	// an error: v is left untouched.
	Load(name string, v any) error

	// Save rewrites the named collection from v.
	Save(name string, v any) error
}

// BackendType selects a backend implementation.
type BackendType string

const (
	// FileBackend persists collections as JSON files under a data directory.
	FileBackend BackendType = "file"

	// MemoryBackend keeps collections in process memory. Used in tests and
	// for ephemeral deployments.
	MemoryBackend BackendType = "memory"
)

// NewBackend creates a backend of the given type. dataDir is only used by
// the file backend.
func NewBackend(typ BackendType, dataDir string) (Backend, error) {
	switch typ {
	case FileBackend, "":
		return newFileBackend(dataDir)
	case MemoryBackend:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", typ)
	}
}

// fileBackend stores each collection as <dataDir>/<name>.json, writing to a
// temp file and renaming so a crash mid-write never truncates the previous
// snapshot. Saves are serialized: concurrent writers share one temp path
// per collection.
type fileBackend struct {
	mu      sync.Mutex
	dataDir string
}

func newFileBackend(dataDir string) (*fileBackend, error) {
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &fileBackend{dataDir: dataDir}, nil
}

func (b *fileBackend) path(name string) string {
	return filepath.Join(b.dataDir, name+".json")
}

func (b *fileBackend) Load(name string, v any) error {
	data, err := os.ReadFile(b.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error reading %s collection: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error parsing %s collection: %w", name, err)
	}
	return nil
}

func (b *fileBackend) Save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding %s collection: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tmp := b.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("error writing %s collection: %w", name, err)
	}
	return os.Rename(tmp, b.path(name))
}

// memoryBackend keeps serialized collections in a map. Serializing through
// JSON keeps its behavior identical to the file backend, including loss of
// unexported state.
type memoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() Backend {
	return &memoryBackend{data: make(map[string][]byte)}
}

func (b *memoryBackend) Load(name string, v any) error {
	b.mu.Lock()
	data, ok := b.data[name]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (b *memoryBackend) Save(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.data[name] = data
	b.mu.Unlock()
	return nil
}
