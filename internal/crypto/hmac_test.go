package crypto

import "testing"

// TestSignVerifyRoundTrip checks the signer against its own verifier:
// verify(secret, M, P, ts, n, body, sign(secret, M, P, ts, n, body)) == true
func TestSignVerifyRoundTrip(t *testing.T) {
	secret := []byte("shh-secret")
	sig := SignRequest(secret, "POST", "/v1/x", 1700000000, "nonce-1", []byte(`{"k":1}`))
	if !VerifyRequestSignature(secret, "POST", "/v1/x", 1700000000, "nonce-1", []byte(`{"k":1}`), sig) {
		t.Fatal("expected round-trip verification to succeed")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	secret := []byte("shh-secret")
	sig := SignRequest(secret, "POST", "/v1/x", 1700000000, "nonce-1", []byte(`{"k":1}`))
	if VerifyRequestSignature(secret, "POST", "/v1/x", 1700000000, "nonce-1", []byte(`{"k":2}`), sig) {
		t.Fatal("expected verification to fail for a tampered body")
	}
}

func TestDocumentSignatureRoundTrip(t *testing.T) {
	secret := []byte("shh-secret")
	sig := SignDocument(secret, "doc-123", 1700000600)
	if !VerifyDocumentSignature(secret, "doc-123", 1700000600, sig) {
		t.Fatal("expected document signature round trip to succeed")
	}
}

func TestHashLookupDeterministic(t *testing.T) {
	if HashLookup("svc_live_abc") != HashLookup("svc_live_abc") {
		t.Fatal("expected HashLookup to be deterministic")
	}
	if HashLookup("svc_live_abc") == HashLookup("svc_live_xyz") {
		t.Fatal("expected different inputs to hash differently")
	}
}
