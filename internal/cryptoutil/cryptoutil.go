// Package cryptoutil collects the primitive hash/hmac/encoding operations
// used by the WebSocket handshake and the optional JWT login path. These are
// thin wrappers over the standard library rather than an imported hashing
// library: crypto/sha1, crypto/sha256, crypto/hmac and crypto/subtle are the
// idiomatic choice in Go for primitives this small (see DESIGN.md).
package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Sha1Sum returns the SHA-1 digest of data.
func Sha1Sum(data []byte) [20]byte {
	return sha1.Sum(data)
}

// Sha256Hex returns the hex-encoded SHA-256 digest of data, matching the
// vectors in the spec's testable-properties section.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	const hexTable = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hexTable[b>>4]
		out[i*2+1] = hexTable[b&0x0f]
	}
	return string(out)
}

// HmacSha256 computes HMAC-SHA-256(key, msg).
func HmacSha256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// Base64StdEncode/Base64URLEncode/Base64URLDecode round-trip arbitrary bytes.
func Base64StdEncode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func Base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// ConstantTimeEqual reports whether a and b are byte-identical, in time
// independent of where they first differ.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
