package encryption

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// SecureRandom is the default source for nonces and keys.
var SecureRandom io.Reader = rand.Reader

// RandomBytes fills a new n-byte slice from r.
func RandomBytes(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// RandomUint32 draws four bytes from r.
func RandomUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
