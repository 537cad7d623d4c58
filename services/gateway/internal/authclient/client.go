package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookshelf/pkg/domain"
)

// Client calls the hosted identity provider (GoTrue) over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// APIError represents an identity provider error response.
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

// NewClient constructs an identity client. projectURL is the project root
// (https://<ref>.supabase.co); apiKey is the public anon key.
func NewClient(projectURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(projectURL, "/") + "/auth/v1",
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// SignUp registers a new account. It does not sign the caller in.
func (c *Client) SignUp(ctx context.Context, cred domain.Credential) error {
	payload := map[string]string{"email": cred.Email, "password": cred.Password}
	return c.doJSON(ctx, http.MethodPost, "/signup", "", payload, nil)
}

// SignIn exchanges a password for an access token.
func (c *Client) SignIn(ctx context.Context, cred domain.Credential) (domain.Session, error) {
	payload := map[string]string{"email": cred.Email, "password": cred.Password}
	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/token?grant_type=password", "", payload, &resp); err != nil {
		return domain.Session{}, err
	}
	if resp.AccessToken == "" {
		return domain.Session{}, fmt.Errorf("sign in: empty access token")
	}
	return domain.Session{
		AccessToken: resp.AccessToken,
		User:        domain.User{ID: resp.User.ID, Email: resp.User.Email},
	}, nil
}

// User resolves an access token to the account it was issued for.
func (c *Client) User(ctx context.Context, token string) (domain.User, error) {
	var resp userResponse
	if err := c.doJSON(ctx, http.MethodGet, "/user", token, nil, &resp); err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: resp.ID, Email: resp.Email}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}

// decodeAPIError reads the provider's error body. GoTrue has used several
// shapes over time, so the first non-empty message field wins.
func decodeAPIError(resp *http.Response) *APIError {
	var errResp map[string]any
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp)
	msg := firstString(errResp, "msg", "error_description", "message", "error")
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{
		Status:  resp.StatusCode,
		Message: msg,
		Code:    firstString(errResp, "error_code", "code", "error"),
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        userResponse `json:"user"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
