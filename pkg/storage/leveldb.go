package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDBStore keeps blobs in a LevelDB database. Writes are synced.
type LevelDBStore struct {
	db   *leveldb.DB
	path string
}

// OpenLevelDBStore opens (or creates) the database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb open %s: %w", path, err)
	}
	return &LevelDBStore{db: db, path: path}, nil
}

// NewInMemoryLevelDBStore opens a LevelDB database backed by memory storage.
func NewInMemoryLevelDBStore() (*LevelDBStore, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb open in-memory: %w", err)
	}
	return &LevelDBStore{db: db, path: ":memory:"}, nil
}

// ReadBlob returns the value stored under key.
func (s *LevelDBStore) ReadBlob(key string) ([]byte, error) {
	data, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get %s: %w", key, err)
	}
	return data, nil
}

// WriteBlob stores data under key and syncs the write-ahead log.
func (s *LevelDBStore) WriteBlob(key string, data []byte) error {
	if err := s.db.Put([]byte(key), data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("leveldb put %s: %w", key, err)
	}
	return nil
}

// Close releases the database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
