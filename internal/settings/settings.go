package settings

import (
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/pkg/storage"
	"github.com/fxamacker/cbor/v2"
)

// Settings are the persisted device flags.
type Settings struct {
	AuthEnabled bool `cbor:"1,keyasint"`
	SerialDebug bool `cbor:"2,keyasint"`
}

// Store caches Settings and writes every change through to the blob store.
type Store struct {
	mu      sync.Mutex
	blobs   storage.BlobStore
	current Settings
}

// NewStore returns a Store over blobs. Call Load before use.
func NewStore(blobs storage.BlobStore) *Store {
	return &Store{blobs: blobs}
}

// Load reads the persisted settings. Missing settings leave every flag off.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.blobs.ReadBlob(constants.BlobSettings)
	if errors.Is(err, storage.ErrNotFound) {
		s.current = Settings{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	var loaded Settings
	if err := cbor.Unmarshal(data, &loaded); err != nil {
		s.current = Settings{}
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	s.current = loaded
	return nil
}

// Get returns a copy of the cached settings.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// AuthEnabled returns the persisted authentication flag.
func (s *Store) AuthEnabled() bool {
	return s.Get().AuthEnabled
}

// SerialDebug returns the persisted serial debug flag.
func (s *Store) SerialDebug() bool {
	return s.Get().SerialDebug
}

// SetAuthEnabled persists the authentication flag.
func (s *Store) SetAuthEnabled(enabled bool) error {
	return s.update(func(st *Settings) { st.AuthEnabled = enabled })
}

// SetSerialDebug persists the serial debug flag.
func (s *Store) SetSerialDebug(enabled bool) error {
	return s.update(func(st *Settings) { st.SerialDebug = enabled })
}

// update applies fn to the cached copy and then persists it. On a write
// failure the cached copy keeps the change.
func (s *Store) update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.current)
	data, err := cbor.Marshal(s.current)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.blobs.WriteBlob(constants.BlobSettings, data); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
