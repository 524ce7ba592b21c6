package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCursorEncodeDecodeRoundTrip(t *testing.T) {
	want := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC),
		ID:        "3f8a1c2e-7b4d-4e6f-9a01-d2c3b4a59687",
	}
	got, err := DecodeCursor(want.Encode())
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.ID != want.ID {
		t.Errorf("ID = %q, want %q", got.ID, want.ID)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, tok := range []string{
		"not base64 !!!",
		"aGVsbG8", // decodes, but no separator
		"fA",      // "|" alone, empty id
		"eHx5",    // "x|y", non-numeric timestamp
	} {
		if _, err := DecodeCursor(tok); err == nil {
			t.Errorf("DecodeCursor(%q): expected error", tok)
		}
	}
}

func TestParseCursorParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=10", nil)
	p, err := ParseCursorParams(r)
	if err != nil {
		t.Fatalf("ParseCursorParams: %v", err)
	}
	if p.Limit != 10 || p.After != nil {
		t.Errorf("params = %+v, want limit 10 and no cursor", p)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	p, err = ParseCursorParams(r)
	if err != nil {
		t.Fatalf("ParseCursorParams (defaults): %v", err)
	}
	if p.Limit != DefaultPageSize {
		t.Errorf("default limit = %d, want %d", p.Limit, DefaultPageSize)
	}

	r = httptest.NewRequest(http.MethodGet, "/?limit=100000", nil)
	p, err = ParseCursorParams(r)
	if err != nil {
		t.Fatalf("ParseCursorParams (oversize): %v", err)
	}
	if p.Limit != MaxPageSize {
		t.Errorf("clamped limit = %d, want %d", p.Limit, MaxPageSize)
	}

	r = httptest.NewRequest(http.MethodGet, "/?limit=-3", nil)
	if _, err := ParseCursorParams(r); err == nil {
		t.Error("expected error for negative limit")
	}

	r = httptest.NewRequest(http.MethodGet, "/?after=%21%21", nil)
	if _, err := ParseCursorParams(r); err == nil {
		t.Error("expected error for undecodable cursor")
	}
}

func TestParseCursorParamsRoundTripsCursor(t *testing.T) {
	c := Cursor{CreatedAt: time.Now().UTC().Truncate(time.Microsecond), ID: "evt-1"}
	r := httptest.NewRequest(http.MethodGet, "/?after="+c.Encode(), nil)
	p, err := ParseCursorParams(r)
	if err != nil {
		t.Fatalf("ParseCursorParams: %v", err)
	}
	if p.After == nil || p.After.ID != "evt-1" || !p.After.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("After = %+v, want %+v", p.After, c)
	}
}

func TestNewCursorPage(t *testing.T) {
	cursorFn := func(s string) Cursor { return Cursor{ID: s} }

	// Short result set: no next cursor.
	page := NewCursorPage([]string{"a", "b"}, 3, cursorFn)
	if page.HasMore || page.NextCursor != nil || len(page.Items) != 2 {
		t.Errorf("short page = %+v, want 2 items and no continuation", page)
	}

	// limit+1 rows: trimmed, and the cursor points at the last kept item.
	page = NewCursorPage([]string{"a", "b", "c", "d"}, 3, cursorFn)
	if !page.HasMore || page.NextCursor == nil || len(page.Items) != 3 {
		t.Fatalf("full page = %+v, want 3 items and a continuation", page)
	}
	c, err := DecodeCursor(*page.NextCursor)
	if err != nil {
		t.Fatalf("decoding next cursor: %v", err)
	}
	if c.ID != "c" {
		t.Errorf("next cursor id = %q, want %q (last kept item)", c.ID, "c")
	}
}

func TestParseOffsetParams(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=3&page_size=10", nil)
	p, err := ParseOffsetParams(r)
	if err != nil {
		t.Fatalf("ParseOffsetParams: %v", err)
	}
	if p.Page != 3 || p.PageSize != 10 || p.Offset != 20 {
		t.Errorf("params = %+v, want page 3, size 10, offset 20", p)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	p, err = ParseOffsetParams(r)
	if err != nil {
		t.Fatalf("ParseOffsetParams (defaults): %v", err)
	}
	if p.Page != 1 || p.PageSize != DefaultPageSize || p.Offset != 0 {
		t.Errorf("default params = %+v", p)
	}

	r = httptest.NewRequest(http.MethodGet, "/?page_size=9999", nil)
	p, err = ParseOffsetParams(r)
	if err != nil {
		t.Fatalf("ParseOffsetParams (oversize): %v", err)
	}
	if p.PageSize != MaxPageSize {
		t.Errorf("clamped page_size = %d, want %d", p.PageSize, MaxPageSize)
	}

	r = httptest.NewRequest(http.MethodGet, "/?page=0", nil)
	if _, err := ParseOffsetParams(r); err == nil {
		t.Error("expected error for page=0")
	}
}

func TestOffsetParamsSlice(t *testing.T) {
	p := OffsetParams{Page: 2, PageSize: 10, Offset: 10}

	lo, hi := p.Slice(25)
	if lo != 10 || hi != 20 {
		t.Errorf("Slice(25) = [%d:%d], want [10:20]", lo, hi)
	}

	lo, hi = p.Slice(14)
	if lo != 10 || hi != 14 {
		t.Errorf("Slice(14) = [%d:%d], want [10:14]", lo, hi)
	}

	lo, hi = p.Slice(5)
	if lo != 0 || hi != 0 {
		t.Errorf("Slice(5) = [%d:%d], want empty window", lo, hi)
	}
}

func TestNewOffsetPage(t *testing.T) {
	p := OffsetParams{Page: 1, PageSize: 10, Offset: 0}
	page := NewOffsetPage([]string{"x", "y"}, p, 42)
	if page.TotalItems != 42 || page.TotalPages != 5 || page.Page != 1 {
		t.Errorf("page = %+v, want 42 total over 5 pages", page)
	}
}
