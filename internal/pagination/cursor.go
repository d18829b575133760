// Package pagination implements opaque keyset cursors for newest-first
// listings such as ledger history.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var errInvalid = errors.New("invalid cursor")

// Cursor marks a position in a result set ordered by (created_at, id).
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode returns the opaque form of a cursor position.
func Encode(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor. Empty input means "start from the
// top" and decodes to nil without error.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, errInvalid
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, errInvalid
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, errInvalid
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// ComputePage trims a slice fetched with limit+1 rows down to limit and
// derives the cursor for the following page. extractKey reads the sort
// key off the last kept item. An empty cursor means the page was the
// last one.
func ComputePage[T any](items []T, limit int, extractKey func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	createdAt, id := extractKey(items[len(items)-1])
	return items, Encode(createdAt, id), true
}
