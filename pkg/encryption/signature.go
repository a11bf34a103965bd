package encryption

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// MACSize is the length of an HMAC-SHA256 tag.
const MACSize = sha256.Size

// SignHMAC returns HMAC-SHA256(key, message).
func SignHMAC(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// SignHMACHex returns the lowercase hex encoding of SignHMAC(key, message).
func SignHMACHex(key, message []byte) string {
	return hex.EncodeToString(SignHMAC(key, message))
}

// VerifyHMAC recomputes the tag for message and compares it to mac in
// constant time.
func VerifyHMAC(key, message, mac []byte) bool {
	return hmac.Equal(SignHMAC(key, message), mac)
}
