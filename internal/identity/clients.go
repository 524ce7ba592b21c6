package identity

import (
	"context"

	"github.com/aegiscore/identity/pkg/apperr"
)

// ClientSecrets adapts a Store to signature.ClientSecretLookup, resolving
// an HMAC client_id to its ServiceAccount's signing secret.
type ClientSecrets struct {
	Store Store
}

// SigningSecretForClient implements signature.ClientSecretLookup.
func (c ClientSecrets) SigningSecretForClient(ctx context.Context, clientID string) (string, error) {
	acc, err := c.Store.FindServiceByKey(ctx, clientID)
	if err != nil {
		return "", err
	}
	if acc == nil || acc.State != ServiceAccountActive {
		return "", apperr.New(apperr.Unauthenticated, "invalid client id")
	}
	return acc.SigningSecret, nil
}
