package bookclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bookshelf/pkg/domain"
)

// bookRow is the wire shape of a books row. id and created_at are decoded
// leniently because hosted schemas differ (uuid vs bigint ids, timestamp
// with or without time zone).
type bookRow struct {
	ID        rowID   `json:"id"`
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Pages     int     `json:"pages"`
	Year      int     `json:"year"`
	OwnerID   string  `json:"owner_id"`
	CreatedAt rowTime `json:"created_at"`
}

func (r bookRow) toBook() domain.Book {
	return domain.Book{
		ID:        string(r.ID),
		Title:     r.Title,
		Author:    r.Author,
		Pages:     r.Pages,
		Year:      r.Year,
		OwnerID:   r.OwnerID,
		CreatedAt: time.Time(r.CreatedAt),
	}
}

func toBooks(rows []bookRow) []domain.Book {
	out := make([]domain.Book, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toBook())
	}
	return out
}

// rowID accepts both JSON strings and numbers.
type rowID string

func (id *rowID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = rowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("book id: %w", err)
	}
	*id = rowID(n.String())
	return nil
}

var rowTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// rowTime parses timestamps with or without a zone; zone-less values are UTC.
type rowTime time.Time

func (t *rowTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*t = rowTime{}
		return nil
	}
	for _, layout := range rowTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = rowTime(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("created_at: unrecognised timestamp %q", s)
}
