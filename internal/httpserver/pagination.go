package httpserver

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPageSize is the page size applied when the client sends none.
	DefaultPageSize = 25
	// MaxPageSize caps client-requested page sizes.
	MaxPageSize = 100
)

// queryInt reads a positive integer query parameter, returning def when the
// parameter is absent and clamping the result to max.
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	if n > max {
		n = max
	}
	return n, nil
}

// --- Keyset (cursor) pagination, used for append-only streams such as
// audit events where offset paging would skid under concurrent inserts ---

// Cursor marks a position in a (created_at, id)-ordered result set. ID is
// the row's identifier as stored, compared lexically by the keyset query.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode serializes the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor reverses Encode. Clients treat cursors as opaque; any token
// this function rejects was not produced by Encode.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("decoding cursor: %w", err)
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("malformed cursor")
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor timestamp")
	}
	return Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// CursorParams are the parsed query parameters of a keyset-paginated list.
type CursorParams struct {
	After *Cursor // resume after this position; nil starts at the newest row
	Limit int
}

// ParseCursorParams reads limit and after from the request query.
func ParseCursorParams(r *http.Request) (CursorParams, error) {
	limit, err := queryInt(r, "limit", DefaultPageSize, MaxPageSize)
	if err != nil {
		return CursorParams{}, err
	}
	p := CursorParams{Limit: limit}
	if tok := r.URL.Query().Get("after"); tok != "" {
		c, err := DecodeCursor(tok)
		if err != nil {
			return CursorParams{}, fmt.Errorf("invalid cursor: %w", err)
		}
		p.After = &c
	}
	return p, nil
}

// CursorPage is the response envelope of a keyset-paginated list.
type CursorPage[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
}

// NewCursorPage trims a limit+1 result set down to one page. cursorFn
// extracts the keyset position of an item; it is called only for the last
// item of a full page.
func NewCursorPage[T any](items []T, limit int, cursorFn func(T) Cursor) CursorPage[T] {
	if len(items) <= limit {
		return CursorPage[T]{Items: items}
	}
	items = items[:limit]
	next := cursorFn(items[limit-1]).Encode()
	return CursorPage[T]{Items: items, NextCursor: &next, HasMore: true}
}

// --- Offset pagination, used for small bounded sets (org nodes, roles) ---

// OffsetParams are the parsed query parameters of an offset-paginated list.
type OffsetParams struct {
	Page     int
	PageSize int
	Offset   int
}

// ParseOffsetParams reads page and page_size from the request query.
func ParseOffsetParams(r *http.Request) (OffsetParams, error) {
	page, err := queryInt(r, "page", 1, 1<<30)
	if err != nil {
		return OffsetParams{}, err
	}
	size, err := queryInt(r, "page_size", DefaultPageSize, MaxPageSize)
	if err != nil {
		return OffsetParams{}, err
	}
	return OffsetParams{Page: page, PageSize: size, Offset: (page - 1) * size}, nil
}

// Slice applies the offset window to an already-loaded result set.
func (p OffsetParams) Slice(n int) (lo, hi int) {
	if p.Offset >= n {
		return 0, 0
	}
	hi = p.Offset + p.PageSize
	if hi > n {
		hi = n
	}
	return p.Offset, hi
}

// OffsetPage is the response envelope of an offset-paginated list.
type OffsetPage[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewOffsetPage wraps one page of items with its position and totals.
func NewOffsetPage[T any](items []T, params OffsetParams, totalItems int) OffsetPage[T] {
	pages := (totalItems + params.PageSize - 1) / params.PageSize
	return OffsetPage[T]{
		Items:      items,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalItems: totalItems,
		TotalPages: pages,
	}
}
