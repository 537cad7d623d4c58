package bookclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceKey = "service-role"

// fakeREST is a minimal stand-in for the data API's books table. It honours
// eq filters on id and owner_id, which is all the client sends.
type fakeREST struct {
	mu     sync.Mutex
	rows   []map[string]any
	nextID int
	calls  []string
}

func (f *fakeREST) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, r.Method+" "+r.URL.RawQuery)
		if r.URL.Path != "/rest/v1/books" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("apikey") != serviceKey || r.Header.Get("Authorization") != "Bearer "+serviceKey {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Invalid API key"})
			return
		}
		q := r.URL.Query()
		if id := q.Get("id"); id == "eq.not-a-uuid" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "22P02", "message": `invalid input syntax for type uuid: "not-a-uuid"`})
			return
		}
		match := func(row map[string]any) bool {
			for _, key := range []string{"id", "owner_id"} {
				if v := q.Get(key); v != "" && "eq."+row[key].(string) != v {
					return false
				}
			}
			return true
		}
		var out []map[string]any
		switch r.Method {
		case http.MethodGet:
			for i := len(f.rows) - 1; i >= 0; i-- {
				if match(f.rows[i]) {
					out = append(out, f.rows[i])
				}
			}
		case http.MethodPost:
			var row map[string]any
			_ = json.NewDecoder(r.Body).Decode(&row)
			if _, ok := row["title"]; !ok {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"code": "23502", "message": "null value in column \"title\""})
				return
			}
			f.nextID++
			row["id"] = "b-" + string(rune('0'+f.nextID))
			row["created_at"] = time.Date(2025, 1, f.nextID, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
			f.rows = append(f.rows, row)
			out = append(out, row)
		case http.MethodPatch:
			var patch map[string]any
			_ = json.NewDecoder(r.Body).Decode(&patch)
			for _, row := range f.rows {
				if match(row) {
					for k, v := range patch {
						row[k] = v
					}
					out = append(out, row)
				}
			}
		case http.MethodDelete:
			kept := f.rows[:0]
			for _, row := range f.rows {
				if match(row) {
					out = append(out, map[string]any{"id": row["id"]})
					continue
				}
				kept = append(kept, row)
			}
			f.rows = kept
		}
		if out == nil {
			out = []map[string]any{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}

func newTestClient(t *testing.T) (*Client, *fakeREST) {
	t.Helper()
	fake := &fakeREST{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, serviceKey), fake
}

func TestCreateAndListNewestFirst(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	first, err := c.Create(ctx, domain.NewBook{Title: "Dune", Author: "Herbert", Pages: 412, Year: 1965, OwnerID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", first.OwnerID)
	assert.Equal(t, 412, first.Pages)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = c.Create(ctx, domain.NewBook{Title: "Emma", Author: "Austen", Pages: 300, Year: 1815, OwnerID: "u-2"})
	require.NoError(t, err)

	owned, err := c.ListOwned(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, first.ID, owned[0].ID)

	all, err := c.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Emma", all[0].Title)
}

func TestFetchOwnership(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	created, err := c.Create(ctx, domain.NewBook{Title: "T", Author: "A", Pages: 1, Year: 1, OwnerID: "u-1"})
	require.NoError(t, err)

	own, err := c.FetchOwnership(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Ownership{ID: created.ID, OwnerID: "u-1"}, own)

	_, err = c.FetchOwnership(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = c.FetchOwnership(ctx, "not-a-uuid")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "22P02", apiErr.Code)
}

func TestConditionalUpdateAndDelete(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	created, err := c.Create(ctx, domain.NewBook{Title: "T", Author: "A", Pages: 10, Year: 2000, OwnerID: "u-1"})
	require.NoError(t, err)

	pages := 99
	_, err = c.Update(ctx, created.ID, "u-2", domain.BookPatch{Pages: &pages})
	assert.ErrorIs(t, err, store.ErrNotFound)

	updated, err := c.Update(ctx, created.ID, "u-1", domain.BookPatch{Pages: &pages})
	require.NoError(t, err)
	assert.Equal(t, 99, updated.Pages)
	assert.Equal(t, "T", updated.Title)

	same, err := c.Update(ctx, created.ID, "u-1", domain.BookPatch{})
	require.NoError(t, err)
	assert.Equal(t, 99, same.Pages)

	assert.ErrorIs(t, c.Delete(ctx, created.ID, "u-2"), store.ErrNotFound)
	require.NoError(t, c.Delete(ctx, created.ID, "u-1"))
	assert.ErrorIs(t, c.Delete(ctx, created.ID, "u-1"), store.ErrNotFound)

	var patchSeen bool
	for _, call := range fake.calls {
		if strings.HasPrefix(call, http.MethodPatch) {
			patchSeen = true
			assert.Contains(t, call, "owner_id=eq.u-")
		}
	}
	assert.True(t, patchSeen)
}

func TestStoreErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "XX000", "message": "relation \"books\" does not exist"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, serviceKey).ListAll(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, `relation "books" does not exist`, apiErr.Message)
}

func TestRowDecodingIsLenient(t *testing.T) {
	var rows []bookRow
	err := json.Unmarshal([]byte(`[
		{"id": 42, "title": "T", "author": "A", "pages": 1, "year": 2, "owner_id": "u", "created_at": "2024-03-01T10:00:00.123456"},
		{"id": "c0ffee", "title": "T", "author": "A", "pages": 1, "year": 2, "owner_id": "u", "created_at": "2024-03-01T10:00:00+02:00"}
	]`), &rows)
	require.NoError(t, err)
	books := toBooks(rows)
	assert.Equal(t, "42", books[0].ID)
	assert.True(t, time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC).Equal(books[0].CreatedAt))
	assert.Equal(t, "c0ffee", books[1].ID)
	assert.True(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC).Equal(books[1].CreatedAt))
}
