package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetGetExists(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "k", "v", 60); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}
	exists, err := s.Exists(ctx, "k")
	if err != nil || !exists {
		t.Fatalf("Exists: %v %v", exists, err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.SetWithTTL(ctx, "k", "v", 0)
	time.Sleep(5 * time.Millisecond)
	exists, _ := s.Exists(ctx, "k")
	if exists {
		t.Fatal("expected key to have expired")
	}
}

func TestMemoryStoreBlacklist(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	blacklisted, _ := s.IsBlacklisted(ctx, "jti-1")
	if blacklisted {
		t.Fatal("expected jti-1 to start unblacklisted")
	}
	_ = s.SetBlacklist(ctx, "jti-1", 60)
	blacklisted, _ = s.IsBlacklisted(ctx, "jti-1")
	if !blacklisted {
		t.Fatal("expected jti-1 to be blacklisted")
	}
}

func TestMemoryStoreSetNXMutualExclusion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.SetNX(ctx, "nonce:abc", "1", 120)
	if err != nil || !first {
		t.Fatalf("expected first SetNX to succeed: %v %v", first, err)
	}
	second, err := s.SetNX(ctx, "nonce:abc", "1", 120)
	if err != nil || second {
		t.Fatalf("expected second SetNX (replay) to fail: %v %v", second, err)
	}
}
