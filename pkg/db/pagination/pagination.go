package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	DefaultLimit = 50
	MaxLimit     = 250
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit" binding:"gte=0,lte=250"`
}

// PageSize returns the effective limit, DefaultLimit when unset.
func (p Pagination) PageSize() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Cursor points at the last row of the previous page in (created_at DESC, id DESC) order.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}

	if cursor.ID == "" {
		return nil, fmt.Errorf("invalid cursor: missing id")
	}

	return &cursor, nil
}

// BuildCursorPage trims a result fetched with limit+1 rows and reports whether
// another page follows.
func BuildCursorPage[T any](data []*T, limit int, extractCursor func(*T) Cursor) ([]*T, *PageInfo, error) {
	if len(data) <= limit {
		return data, &PageInfo{HasMore: false}, nil
	}

	data = data[:limit]
	next, err := EncodeCursor(extractCursor(data[len(data)-1]))
	if err != nil {
		return nil, nil, err
	}

	return data, &PageInfo{HasMore: true, NextCursor: next}, nil
}
