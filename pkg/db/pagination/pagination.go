package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=10" validate:"gte=1,lte=250"`
}

// Size is the clamped page size.
func (p Pagination) Size() int {
	switch {
	case p.Limit <= 0:
		return 10
	case p.Limit > 250:
		return 250
	default:
		return p.Limit
	}
}

// Cursor points at the last row of a page ordered by (created_at, id) desc.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// BuildCursorPage trims data fetched with limit+1 rows back to limit and
// reports whether another page exists.
func BuildCursorPage[T any](data []*T, p Pagination, extractCursor func(*T) Cursor) ([]*T, *PageInfo) {
	limit := p.Size()
	if len(data) <= limit {
		return data, &PageInfo{}
	}

	data = data[:limit]
	next, _ := EncodeCursor(extractCursor(data[len(data)-1]))
	return data, &PageInfo{HasMore: true, NextCursor: next}
}
