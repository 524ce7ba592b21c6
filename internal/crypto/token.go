package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// RandomToken returns a CSPRNG-generated token with nBytes*8 bits of
// entropy, URL-safe encoded. Use nBytes=32 for a 256-bit token.
func RandomToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MustRandomToken panics if entropy generation fails — acceptable only at
// startup (e.g. generating a dev secret), never on a request path.
func MustRandomToken(nBytes int) string {
	s, err := RandomToken(nBytes)
	if err != nil {
		panic(err)
	}
	return s
}
