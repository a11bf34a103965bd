package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/benmeehan/gpio-agent/pkg/file"
)

// ErrNotFound is returned by ReadBlob when nothing is stored under the key.
var ErrNotFound = errors.New("blob not found")

// Supported backends.
const (
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// BlobStore persists opaque byte blobs under short keys. WriteBlob must not
// return before the data is durable.
type BlobStore interface {
	ReadBlob(key string) ([]byte, error)
	WriteBlob(key string, data []byte) error
	Close() error
}

// Open builds the BlobStore for the given backend rooted at path.
func Open(backend, path string, fileClient file.FileOperations) (BlobStore, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path, fileClient)
	case BackendLevelDB:
		return OpenLevelDBStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// FileStore keeps every blob in its own file inside a directory.
type FileStore struct {
	dir        string
	fileClient file.FileOperations
}

// NewFileStore creates the directory if needed and returns a FileStore over it.
func NewFileStore(dir string, fileClient file.FileOperations) (*FileStore, error) {
	if err := fileClient.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{dir: dir, fileClient: fileClient}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".bin")
}

// ReadBlob returns the blob stored under key.
func (s *FileStore) ReadBlob(key string) ([]byte, error) {
	exists, err := s.fileClient.IsFileExists(s.path(key))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return s.fileClient.ReadFileRaw(s.path(key))
}

// WriteBlob atomically replaces the blob stored under key.
func (s *FileStore) WriteBlob(key string, data []byte) error {
	return s.fileClient.WriteFileRaw(s.path(key), data)
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error { return nil }

// MemoryStore is a volatile BlobStore. WriteErr, when set, is returned by
// every WriteBlob call without storing anything.
type MemoryStore struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	writes   int
	WriteErr error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// ReadBlob returns a copy of the blob stored under key.
func (s *MemoryStore) ReadBlob(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// WriteBlob stores a copy of data under key.
func (s *MemoryStore) WriteBlob(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.blobs[key] = append([]byte(nil), data...)
	s.writes++
	return nil
}

// Writes reports how many successful writes the store has seen.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// SetWriteErr makes subsequent writes fail with err (nil restores them).
func (s *MemoryStore) SetWriteErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteErr = err
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error { return nil }
