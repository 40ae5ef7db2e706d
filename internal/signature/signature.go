// Package signature verifies HMAC-SHA256 signatures over raw webhook bodies.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verify reports whether signatureHex is a valid hex-encoded HMAC-SHA256 of
// rawBody under secret. The comparison is constant-time.
//
// rawBody must be the exact bytes received on the wire, captured before any
// structural parsing: re-serializing the payload (key order, whitespace)
// would change the digest and forge a mismatch.
//
// Verify never returns an error: a missing or empty signature, malformed
// hex, a length mismatch, or a digest mismatch all report false.
func Verify(rawBody []byte, signatureHex string, secret []byte) bool {
	if signatureHex == "" || len(secret) == 0 {
		return false
	}

	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	// hmac.Equal is constant-time and handles the length check.
	return hmac.Equal(expected, provided)
}

// Compute returns the hex-encoded HMAC-SHA256 of body under secret. It is
// the inverse of Verify and is what senders use to sign payloads.
func Compute(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
