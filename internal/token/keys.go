package token

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/aegiscore/identity/pkg/apperr"
)

// LoadPrivateKey reads a PEM-encoded PKCS#1 or PKCS#8 RSA private key from
// path. Key material is loaded once at startup and held read-only.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, apperr.New(apperr.Internal, "private key file is not valid PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, apperr.New(apperr.Internal, "private key is not RSA")
	}
	return rsaKey, nil
}

// KeyID derives a stable key identifier from the public key's modulus,
// used as the JWS "kid" header and the JWKS document's key id.
func KeyID(pub *rsa.PublicKey) string {
	return fmt.Sprintf("%x", pub.N.Bytes()[:8])
}
