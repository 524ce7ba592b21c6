package crypto

import "testing"

func testHasher() *PasswordHasher {
	return &PasswordHasher{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestPasswordHashVerifyRoundTrip(t *testing.T) {
	h := testHasher()
	encoded, err := h.Hash("SecurePass123!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Verify("SecurePass123!", encoded) {
		t.Fatal("expected verify to succeed for the original password")
	}
	if h.Verify("wrong-password", encoded) {
		t.Fatal("expected verify to fail for the wrong password")
	}
}

func TestPasswordHashUniqueSalt(t *testing.T) {
	h := testHasher()
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("expected two hashes of the same password to differ (random salt)")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h := testHasher()
	if h.Verify("anything", "not-a-valid-hash") {
		t.Fatal("expected malformed hash to fail verification")
	}
}
