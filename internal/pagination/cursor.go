// Package pagination implements opaque keyset cursors for transaction
// and agent listings. A cursor pins a (created_at, id) position so pages
// stay stable while new rows are inserted ahead of the reader.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errInvalidCursor = errors.New("invalid cursor")

// Cursor is a decoded position in a result set ordered by creation time
// with id as the tiebreaker.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode packs a position into the opaque string handed to clients.
func Encode(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode unpacks a client-supplied cursor. An empty string decodes to
// nil, meaning the first page.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, errInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, errInvalidCursor
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, errInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// ComputePage trims a limit+1 overfetch down to the page to return.
// keyOf extracts the (created_at, id) of an item; when more rows exist
// beyond the page, the returned cursor points at the last item kept.
func ComputePage[T any](items []T, limit int, keyOf func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	createdAt, id := keyOf(items[len(items)-1])
	return items, Encode(createdAt, id), true
}

// String implements fmt.Stringer for log output.
func (c *Cursor) String() string {
	if c == nil {
		return "<first page>"
	}
	return fmt.Sprintf("cursor(%s, %s)", c.CreatedAt.Format(time.RFC3339Nano), c.ID)
}
