package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/benmeehan/gpio-agent/internal/constants"
	"github.com/benmeehan/gpio-agent/pkg/clock"
	"github.com/benmeehan/gpio-agent/pkg/encryption"
	"github.com/benmeehan/gpio-agent/pkg/storage"
	"github.com/rs/zerolog"
)

// ErrUnauthorized is the outward failure of every rejected request. The
// more specific errors below all wrap it.
var ErrUnauthorized = errors.New("unauthorized")

var (
	ErrAuthDisabled       = fmt.Errorf("%w: authentication disabled", ErrUnauthorized)
	ErrNoSlot             = fmt.Errorf("%w: no challenge for client", ErrUnauthorized)
	ErrNonceMismatch      = fmt.Errorf("%w: nonce mismatch", ErrUnauthorized)
	ErrNonceExpired       = fmt.Errorf("%w: nonce expired", ErrUnauthorized)
	ErrMalformedSignature = fmt.Errorf("%w: malformed signature", ErrUnauthorized)
	ErrMissingProof       = fmt.Errorf("%w: missing authentication headers", ErrUnauthorized)
	ErrPayloadTooLarge    = fmt.Errorf("%w: signed message too large", ErrUnauthorized)
	ErrSignatureMismatch  = fmt.Errorf("%w: signature mismatch", ErrUnauthorized)
)

// ErrNoSecret is returned by Enable when no shared secret has been generated.
var ErrNoSecret = errors.New("no authentication key")

// FlagStore persists the authentication enablement flag.
type FlagStore interface {
	AuthEnabled() bool
	SetAuthEnabled(enabled bool) error
}

// Slot is one outstanding challenge.
type Slot struct {
	Client     string
	Nonce      uint32
	IssuedAtMs uint32
	Active     bool
}

// Engine issues nonces and verifies signed requests. It owns a fixed pool
// of slots, one per challenged client. All methods are safe to call from
// concurrent request handlers; each call runs to completion under the lock.
type Engine struct {
	mu        sync.Mutex
	slots     [constants.MaxAuthSlots]Slot
	secret    [constants.AuthKeyLen]byte
	hasSecret bool
	enabled   bool

	flags      FlagStore
	blobs      storage.BlobStore
	sealer     encryption.EncryptionManagerInterface
	clock      clock.Clock
	random     io.Reader
	timeoutMs  uint32
	maxMessage int
	logger     zerolog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSealer encrypts the shared secret at rest.
func WithSealer(sealer encryption.EncryptionManagerInterface) Option {
	return func(e *Engine) { e.sealer = sealer }
}

// WithRandom replaces the secure random source.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.random = r }
}

// WithNonceTimeout overrides constants.NonceTimeout.
func WithNonceTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeoutMs = uint32(d.Milliseconds()) }
}

// WithMaxMessage overrides constants.MaxSignedMessage.
func WithMaxMessage(n int) Option {
	return func(e *Engine) { e.maxMessage = n }
}

// NewEngine returns an Engine. Call Initialize before use.
func NewEngine(flags FlagStore, blobs storage.BlobStore, clk clock.Clock, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		flags:      flags,
		blobs:      blobs,
		clock:      clk,
		random:     encryption.SecureRandom,
		timeoutMs:  uint32(constants.NonceTimeout.Milliseconds()),
		maxMessage: constants.MaxSignedMessage,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize clears every slot and restores the enablement flag and secret.
// If the flag is set but the secret cannot be loaded, authentication stays
// off: the device has no other way back in besides a hardware reset.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.slots {
		e.slots[i] = Slot{}
	}
	e.enabled = false
	e.hasSecret = false

	if !e.flags.AuthEnabled() {
		e.logger.Info().Msg("Authentication disabled")
		return nil
	}

	if err := e.loadSecret(); err != nil {
		e.logger.Warn().Err(err).Msg("Authentication flag set but key unavailable, staying open")
		return nil
	}

	e.enabled = true
	e.logger.Info().Msg("Authentication enabled (key loaded from storage)")
	return nil
}

func (e *Engine) loadSecret() error {
	data, err := e.blobs.ReadBlob(constants.BlobAuthKey)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	if e.sealer != nil && len(data) > 0 {
		data, err = e.sealer.Decrypt(data)
		if err != nil {
			return fmt.Errorf("failed to unseal key: %w", err)
		}
	}
	if len(data) != constants.AuthKeyLen {
		return fmt.Errorf("stored key has %d bytes, want %d", len(data), constants.AuthKeyLen)
	}

	copy(e.secret[:], data)
	e.hasSecret = true
	return nil
}

// IsEnabled reports whether protected requests must be verified.
func (e *Engine) IsEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// IssueChallenge binds a fresh nonce to client. A client that already holds
// a slot gets it overwritten; otherwise a free slot is used, and when the
// pool is full the oldest challenge is evicted.
func (e *Engine) IssueChallenge(client string) (uint32, error) {
	nonce, err := encryption.RandomUint32(e.random)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.findSlot(client)
	if idx < 0 {
		idx = e.findFreeSlot()
	}
	if idx < 0 {
		idx = e.findOldestSlot()
		e.logger.Debug().Str("evicted", e.slots[idx].Client).Int("slot", idx).Msg("Auth slot pool full, evicting oldest challenge")
	}

	e.slots[idx] = Slot{
		Client:     client,
		Nonce:      nonce,
		IssuedAtMs: e.clock.MonotonicMillis(),
		Active:     true,
	}
	return nonce, nil
}

// Verify checks signatureHex against HMAC-SHA256(secret, decimal(nonce) ||
// uri || payload). uri and payload are used exactly as received. Once the
// client's slot has been located it is released whatever the outcome, so a
// nonce can never be presented twice.
func (e *Engine) Verify(client string, nonce uint32, uri string, payload []byte, signatureHex string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return ErrAuthDisabled
	}

	idx := e.findSlot(client)
	if idx < 0 {
		return ErrNoSlot
	}
	slot := &e.slots[idx]
	defer func() { *slot = Slot{} }()

	if slot.Nonce != nonce {
		return ErrNonceMismatch
	}
	if e.clock.MonotonicMillis()-slot.IssuedAtMs > e.timeoutMs {
		return ErrNonceExpired
	}
	if len(signatureHex) != constants.AuthSignatureHexLen {
		return ErrMalformedSignature
	}

	nonceText := strconv.FormatUint(uint64(nonce), 10)
	if len(nonceText)+len(uri)+len(payload) > e.maxMessage {
		return ErrPayloadTooLarge
	}

	clientMAC, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrMalformedSignature
	}

	message := make([]byte, 0, len(nonceText)+len(uri)+len(payload))
	message = append(message, nonceText...)
	message = append(message, uri...)
	message = append(message, payload...)

	if !encryption.VerifyHMAC(e.secret[:], message, clientMAC) {
		return ErrSignatureMismatch
	}
	return nil
}

// Reject handles a request that arrived without a usable nonce or signature.
// It releases the client's slot exactly as a failed Verify would.
func (e *Engine) Reject(client string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return ErrAuthDisabled
	}
	if idx := e.findSlot(client); idx >= 0 {
		e.slots[idx] = Slot{}
	}
	return ErrMissingProof
}

// GenerateKey creates, stores and caches a new shared secret and returns it
// hex encoded. This is the only time the key leaves the device.
func (e *Engine) GenerateKey() (string, error) {
	key, err := encryption.RandomBytes(e.random, constants.AuthKeyLen)
	if err != nil {
		return "", err
	}

	stored := key
	if e.sealer != nil {
		stored, err = e.sealer.Encrypt(key)
		if err != nil {
			return "", fmt.Errorf("failed to seal key: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.secret[:], key)
	e.hasSecret = true
	if err := e.blobs.WriteBlob(constants.BlobAuthKey, stored); err != nil {
		return "", fmt.Errorf("failed to store key: %w", err)
	}

	e.logger.Info().Msg("New authentication key generated and stored")
	return hex.EncodeToString(key), nil
}

// Enable turns verification on. A key must exist. The flag is persisted
// first; if that fails verification stays off, since the caller never got
// the key out to a client.
func (e *Engine) Enable() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasSecret {
		return ErrNoSecret
	}
	if err := e.flags.SetAuthEnabled(true); err != nil {
		return fmt.Errorf("failed to persist auth flag: %w", err)
	}
	e.enabled = true
	return nil
}

// Disable turns verification off, forgets the key and drops every
// outstanding challenge.
func (e *Engine) Disable() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enabled = false
	e.hasSecret = false
	e.secret = [constants.AuthKeyLen]byte{}
	for i := range e.slots {
		e.slots[i] = Slot{}
	}

	if err := e.flags.SetAuthEnabled(false); err != nil {
		return fmt.Errorf("failed to persist auth flag: %w", err)
	}
	if err := e.blobs.WriteBlob(constants.BlobAuthKey, nil); err != nil {
		return fmt.Errorf("failed to erase key: %w", err)
	}
	return nil
}

// ActiveSlots returns how many challenges are outstanding.
func (e *Engine) ActiveSlots() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, s := range e.slots {
		if s.Active {
			n++
		}
	}
	return n
}

func (e *Engine) findSlot(client string) int {
	for i := range e.slots {
		if e.slots[i].Active && e.slots[i].Client == client {
			return i
		}
	}
	return -1
}

func (e *Engine) findFreeSlot() int {
	for i := range e.slots {
		if !e.slots[i].Active {
			return i
		}
	}
	return -1
}

func (e *Engine) findOldestSlot() int {
	idx := 0
	now := e.clock.MonotonicMillis()
	oldestAge := now - e.slots[0].IssuedAtMs
	for i := 1; i < len(e.slots); i++ {
		if age := now - e.slots[i].IssuedAtMs; age > oldestAge {
			oldestAge = age
			idx = i
		}
	}
	return idx
}
