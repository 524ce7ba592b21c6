package signature

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aegiscore/identity/internal/cache"
	"github.com/aegiscore/identity/internal/crypto"
)

type fakeClients struct{ secret string }

func (f fakeClients) SigningSecretForClient(context.Context, string) (string, error) {
	return f.secret, nil
}

func signedRequest(t *testing.T, secret []byte, clientID, method, path string, body []byte) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	nonce, err := crypto.RandomToken(8)
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	sig := crypto.SignRequest(secret, method, path, ts, nonce, body)

	req := httptest.NewRequest(method, path, strings.NewReader(string(body)))
	req.Header.Set("X-Client-ID", clientID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", sig)
	return req
}

func TestMiddlewareAcceptsValidSignature(t *testing.T) {
	secret := []byte("shh")
	store := cache.NewMemoryStore()
	cfg := Config{RequireSignatures: true}
	mw := Middleware(cfg, store, fakeClients{secret: string(secret)})

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := signedRequest(t, secret, "client-1", http.MethodPost, "/v1/widgets", []byte(`{"a":1}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to run, got status %d", rec.Code)
	}
}

func TestMiddlewareRejectsTamperedSignature(t *testing.T) {
	secret := []byte("shh")
	store := cache.NewMemoryStore()
	cfg := Config{RequireSignatures: true}
	mw := Middleware(cfg, store, fakeClients{secret: string(secret)})

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := signedRequest(t, secret, "client-1", http.MethodPost, "/v1/widgets", []byte(`{"a":1}`))
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Fatal("expected tampered signature to be rejected")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsReplayedNonce(t *testing.T) {
	secret := []byte("shh")
	store := cache.NewMemoryStore()
	cfg := Config{RequireSignatures: true}
	mw := Middleware(cfg, store, fakeClients{secret: string(secret)})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req1 := signedRequest(t, secret, "client-1", http.MethodGet, "/v1/widgets", nil)
	nonce := req1.Header.Get("X-Nonce")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/v1/widgets", nil)
	req2.Header.Set("X-Client-ID", "client-1")
	req2.Header.Set("X-Timestamp", req1.Header.Get("X-Timestamp"))
	req2.Header.Set("X-Nonce", nonce)
	req2.Header.Set("X-Signature", req1.Header.Get("X-Signature"))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("expected replayed nonce to be rejected, got %d", rec2.Code)
	}
}

func TestMiddlewareExemptPathBypassesVerification(t *testing.T) {
	store := cache.NewMemoryStore()
	cfg := Config{RequireSignatures: true, ExemptPrefixes: []string{"/healthz"}}
	mw := Middleware(cfg, store, fakeClients{secret: "irrelevant"})

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected exempt path to pass through, called=%v status=%d", called, rec.Code)
	}
}

func TestMiddlewareOptionalSignatureSkipsUnsignedRequests(t *testing.T) {
	store := cache.NewMemoryStore()
	cfg := Config{RequireSignatures: false}
	mw := Middleware(cfg, store, fakeClients{secret: "irrelevant"})

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/v1/widgets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected unsigned request to pass through when signatures optional, called=%v status=%d", called, rec.Code)
	}
}

func TestMiddlewareRejectsStaleTimestamp(t *testing.T) {
	secret := []byte("shh")
	store := cache.NewMemoryStore()
	cfg := Config{RequireSignatures: true}
	mw := Middleware(cfg, store, fakeClients{secret: string(secret)})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	staleTS := time.Now().Add(-5 * time.Minute).Unix()
	nonce, _ := crypto.RandomToken(8)
	sig := crypto.SignRequest(secret, http.MethodGet, "/v1/widgets", staleTS, nonce, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/widgets", nil)
	req.Header.Set("X-Client-ID", "client-1")
	req.Header.Set("X-Timestamp", strconv.FormatInt(staleTS, 10))
	req.Header.Set("X-Nonce", nonce)
	req.Header.Set("X-Signature", sig)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected stale timestamp to be rejected, got %d", rec.Code)
	}
}
