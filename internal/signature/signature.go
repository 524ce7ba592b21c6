// Package signature implements the inbound request-signature middleware
// and the outbound service-to-service signer. Nonce mutual exclusion rides
// on internal/cache.Store's set-if-absent primitive.
package signature

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aegiscore/identity/internal/cache"
	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/internal/telemetry"
	"github.com/aegiscore/identity/pkg/apperr"
)

const (
	maxClockSkew = 60 * time.Second
	nonceTTL     = 120
)

// ClientSecretLookup resolves a client_id to its current signing secret.
// internal/identity.ClientSecrets adapts an identity.Store to this.
type ClientSecretLookup interface {
	SigningSecretForClient(ctx context.Context, clientID string) (string, error)
}

// Config controls the inbound middleware's behavior.
type Config struct {
	// RequireSignatures, when true, rejects any request that omits
	// signature data. When false, unsigned requests pass through
	// untouched but signed ones are still verified.
	RequireSignatures bool
	// ExemptPrefixes bypasses verification entirely for matching paths.
	ExemptPrefixes []string
}

func (c Config) exempt(path string) bool {
	for _, prefix := range c.ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

type authData struct {
	clientID  string
	timestamp string
	nonce     string
	signature string
}

// Middleware returns the chi-compatible inbound signature verification
// middleware.
func Middleware(cfg Config, store cache.Store, clients ClientSecretLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 0. excluded paths pass through unconditionally.
			if cfg.exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// 1. signatures optional and absent: pass through.
			if !cfg.RequireSignatures {
				hasHeader := r.Header.Get("X-Signature") != ""
				hasQuery := r.URL.Query().Get("signature") != ""
				if !hasHeader && !hasQuery {
					next.ServeHTTP(w, r)
					return
				}
			}

			// 2. extract client_id/timestamp/nonce/signature.
			data, err := extractAuthData(r)
			if err != nil {
				httpserver.RespondAppError(w, err)
				return
			}

			// 3. timestamp skew check.
			ts, err := strconv.ParseInt(data.timestamp, 10, 64)
			if err != nil {
				httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "invalid timestamp format"))
				return
			}
			skew := time.Since(time.Unix(ts, 0))
			if skew < 0 {
				skew = -skew
			}
			if skew > maxClockSkew {
				httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "request timestamp expired"))
				return
			}

			// 4. nonce replay prevention via atomic SetNX.
			ok, err := store.SetNX(r.Context(), "nonce:"+data.nonce, "1", nonceTTL)
			if err != nil {
				httpserver.RespondAppError(w, apperr.Wrap(apperr.Unavailable, "nonce store unavailable", err))
				return
			}
			if !ok {
				telemetry.SignatureVerificationsTotal.WithLabelValues("replay").Inc()
				httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "replay detected (nonce used)"))
				return
			}

			// 5. fetch client's signing secret.
			secret, err := clients.SigningSecretForClient(r.Context(), data.clientID)
			if err != nil {
				httpserver.RespondAppError(w, err)
				return
			}
			if secret == "" {
				httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "invalid client id"))
				return
			}

			// 6. read and buffer the body so it can be re-attached.
			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, "failed to read body", err))
				return
			}

			// 7. verify signature over the canonical payload.
			if !crypto.VerifyRequestSignature([]byte(secret), r.Method, r.URL.Path, ts, data.nonce, body, data.signature) {
				telemetry.SignatureVerificationsTotal.WithLabelValues("invalid").Inc()
				httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "invalid signature"))
				return
			}
			telemetry.SignatureVerificationsTotal.WithLabelValues("ok").Inc()

			// 8. reconstruct the request body for downstream handlers.
			r.Body = io.NopCloser(strings.NewReader(string(body)))

			next.ServeHTTP(w, r)
		})
	}
}

func extractAuthData(r *http.Request) (authData, error) {
	if r.Header.Get("X-Signature") != "" {
		clientID := r.Header.Get("X-Client-ID")
		timestamp := r.Header.Get("X-Timestamp")
		nonce := r.Header.Get("X-Nonce")
		signature := r.Header.Get("X-Signature")
		if clientID == "" || timestamp == "" || nonce == "" || signature == "" {
			return authData{}, apperr.New(apperr.Unauthenticated, "missing signature header")
		}
		return authData{clientID, timestamp, nonce, signature}, nil
	}

	q := r.URL.Query()
	clientID, timestamp, nonce, signature := q.Get("client_id"), q.Get("timestamp"), q.Get("nonce"), q.Get("signature")
	if clientID == "" || timestamp == "" || nonce == "" || signature == "" {
		return authData{}, apperr.New(apperr.Unauthenticated, "missing signature data (headers or query params)")
	}
	return authData{clientID, timestamp, nonce, signature}, nil
}
