package constants

import "time"

const (
	// MaxAuthSlots is the number of clients that can hold an outstanding
	// challenge at the same time.
	MaxAuthSlots = 8

	// AuthKeyLen is the shared secret length in bytes.
	AuthKeyLen = 32

	// AuthSignatureHexLen is the length of a hex encoded HMAC-SHA256 tag.
	AuthSignatureHexLen = AuthKeyLen * 2

	// NonceTimeout is how long an issued nonce stays usable.
	NonceTimeout = 50 * time.Second

	// MinNonceTimeout and MaxNonceTimeout bound a configured nonce lifetime.
	MinNonceTimeout = 30 * time.Second
	MaxNonceTimeout = 50 * time.Second

	// MaxSignedMessage bounds decimal(nonce)+uri+body. It must be at least
	// the HTTP body limit plus room for the path and nonce.
	MaxSignedMessage = 8192
)

// Request headers carrying the authentication proof.
const (
	HeaderNonce = "X-Nonce"
	HeaderAuth  = "X-Auth"
)
