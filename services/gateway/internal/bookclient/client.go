package bookclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

const booksTable = "books"

// Client talks to the hosted REST data API (PostgREST) with the service role
// key. The service role bypasses row-level security, so every owner check
// lives in the gateway.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

var _ store.BookStore = (*Client)(nil)

// APIError represents a data API error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusCode reports the upstream HTTP status.
func (e *APIError) StatusCode() int {
	return e.Status
}

// NewClient constructs a data API client for the project at projectURL.
func NewClient(projectURL, serviceKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(projectURL, "/") + "/rest/v1",
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ListOwned(ctx context.Context, ownerID string) ([]domain.Book, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("owner_id", "eq."+ownerID)
	q.Set("order", "created_at.desc")
	return c.listBooks(ctx, q)
}

func (c *Client) ListAll(ctx context.Context) ([]domain.Book, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	return c.listBooks(ctx, q)
}

func (c *Client) listBooks(ctx context.Context, q url.Values) ([]domain.Book, error) {
	req, err := c.newRequest(ctx, http.MethodGet, q, nil)
	if err != nil {
		return nil, err
	}
	var rows []bookRow
	if err := c.do(req, &rows); err != nil {
		return nil, err
	}
	return toBooks(rows), nil
}

func (c *Client) Create(ctx context.Context, book domain.NewBook) (domain.Book, error) {
	q := url.Values{}
	q.Set("select", "*")
	req, err := c.newRequest(ctx, http.MethodPost, q, book)
	if err != nil {
		return domain.Book{}, err
	}
	req.Header.Set("Prefer", "return=representation")
	var rows []bookRow
	if err := c.do(req, &rows); err != nil {
		return domain.Book{}, err
	}
	if len(rows) != 1 {
		return domain.Book{}, fmt.Errorf("create book: expected 1 row, got %d", len(rows))
	}
	return rows[0].toBook(), nil
}

func (c *Client) FetchOwnership(ctx context.Context, id string) (domain.Ownership, error) {
	q := url.Values{}
	q.Set("select", "id,owner_id")
	q.Set("id", "eq."+id)
	q.Set("limit", "1")
	req, err := c.newRequest(ctx, http.MethodGet, q, nil)
	if err != nil {
		return domain.Ownership{}, err
	}
	var rows []bookRow
	if err := c.do(req, &rows); err != nil {
		return domain.Ownership{}, err
	}
	if len(rows) == 0 {
		return domain.Ownership{}, store.ErrNotFound
	}
	return domain.Ownership{ID: string(rows[0].ID), OwnerID: rows[0].OwnerID}, nil
}

// Update patches the row only while it is still owned by ownerID.
func (c *Client) Update(ctx context.Context, id, ownerID string, patch domain.BookPatch) (domain.Book, error) {
	q := ownedRow(id, ownerID)
	q.Set("select", "*")
	method := http.MethodPatch
	var body any = patch
	if patch.Empty() {
		method, body = http.MethodGet, nil
	}
	req, err := c.newRequest(ctx, method, q, body)
	if err != nil {
		return domain.Book{}, err
	}
	req.Header.Set("Prefer", "return=representation")
	var rows []bookRow
	if err := c.do(req, &rows); err != nil {
		return domain.Book{}, err
	}
	if len(rows) == 0 {
		return domain.Book{}, store.ErrNotFound
	}
	return rows[0].toBook(), nil
}

// Delete removes the row only while it is still owned by ownerID.
func (c *Client) Delete(ctx context.Context, id, ownerID string) error {
	q := ownedRow(id, ownerID)
	q.Set("select", "id")
	req, err := c.newRequest(ctx, http.MethodDelete, q, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=representation")
	var rows []bookRow
	if err := c.do(req, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func ownedRow(id, ownerID string) url.Values {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("owner_id", "eq."+ownerID)
	return q
}

func (c *Client) newRequest(ctx context.Context, method string, q url.Values, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	endpoint := c.baseURL + "/" + booksTable
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	addAuthHeader(req, c.serviceKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("data request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
			Code    string `json:"code"`
			Details string `json:"details"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp)
		msg := strings.TrimSpace(errResp.Message)
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode data response: %w", err)
	}
	return nil
}

func addAuthHeader(req *http.Request, key string) {
	if key == "" {
		return
	}
	req.Header.Set("apikey", key)
	req.Header.Set("Authorization", "Bearer "+key)
}
