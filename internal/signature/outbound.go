package signature

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/aegiscore/identity/internal/crypto"
	"github.com/aegiscore/identity/internal/httpserver"
)

// Signer attaches X-Client-ID/X-Timestamp/X-Nonce/X-Signature headers to
// outbound service-to-service requests, the mirror of Middleware's
// verification.
type Signer struct {
	ClientID string
	Secret   []byte
}

// Sign mutates req in place, adding signature headers plus the trace and
// request-id propagation headers every hop carries.
func (s Signer) Sign(ctx context.Context, req *http.Request) error {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("reading outbound body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	ts := time.Now().Unix()
	nonce, err := crypto.RandomToken(16)
	if err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sig := crypto.SignRequest(s.Secret, req.Method, req.URL.Path, ts, nonce, body)

	req.Header.Set("X-Client-ID", s.ClientID)
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", ts))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", sig)
	if reqID := httpserver.RequestIDFromContext(ctx); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	return nil
}
