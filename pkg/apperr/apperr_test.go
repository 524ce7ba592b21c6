package apperr

import (
	"errors"
	"testing"
)

func TestHTTPStatusRoundTrip(t *testing.T) {
	kinds := []Kind{
		InvalidArgument, Unauthenticated, PermissionDenied, NotFound,
		AlreadyExists, FailedPrecondition, ResourceExhausted, Unavailable, Internal,
	}
	for _, k := range kinds {
		got := FromHTTPStatus(ToHTTPStatus(k))
		if got != k {
			t.Errorf("round trip for %q produced %q", k, got)
		}
	}
}

func TestAsSynthesizesInternal(t *testing.T) {
	ae := As(errors.New("boom"))
	if ae.Kind != Internal {
		t.Fatalf("expected Internal, got %s", ae.Kind)
	}
}

func TestIs(t *testing.T) {
	err := New(NotFound, "tenant not found")
	if !Is(err, NotFound) {
		t.Fatal("expected Is to match NotFound")
	}
	if Is(err, Internal) {
		t.Fatal("did not expect Is to match Internal")
	}
}
