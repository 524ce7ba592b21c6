package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// SignRequest computes the HMAC-SHA256 over the canonical payload
// "method|path|unix_timestamp|nonce|hex(sha256(body))", returned
// as lowercase hex. Pure and side-effect-free.
func SignRequest(secret []byte, method, path string, timestamp int64, nonce string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	payload := fmt.Sprintf("%s|%s|%d|%s|%s", method, path, timestamp, nonce, hex.EncodeToString(bodyHash[:]))

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyRequestSignature reports whether sig is the correct signature for
// the given request parameters, compared in constant time.
func VerifyRequestSignature(secret []byte, method, path string, timestamp int64, nonce string, body []byte, sig string) bool {
	expected := SignRequest(secret, method, path, timestamp, nonce, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}

// SignDocument computes a MAC over "document:{id}:{expiresUnix}", used by
// collaborators to build signed, time-limited content URLs.
func SignDocument(secret []byte, documentID string, expiresUnix int64) string {
	payload := fmt.Sprintf("document:%s:%d", documentID, expiresUnix)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyDocumentSignature reports whether sig is correct for the document
// MAC, compared in constant time.
func VerifyDocumentSignature(secret []byte, documentID string, expiresUnix int64, sig string) bool {
	expected := SignDocument(secret, documentID, expiresUnix)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}

// HashLookup computes a deterministic, non-reversible lookup hash for a
// secret value (service keys, PATs) so the store can index by hash without
// ever persisting the plaintext.
func HashLookup(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
