package ratelimit

import (
	"context"
	"testing"
)

func TestByClientIDUnlimitedWhenZero(t *testing.T) {
	c := NewByClientID(nil, "app", 0)
	res, err := c.Allow(context.Background(), "client-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected limit 0 to mean unlimited")
	}
}
