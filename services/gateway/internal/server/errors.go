package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"bookshelf/internal/validation"
	"bookshelf/services/gateway/internal/app"

	"github.com/jackc/pgx/v5/pgconn"
)

var errAppRequired = errors.New("server: app required")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string                  `json:"error"`
	Code      string                  `json:"code"`
	RequestID string                  `json:"requestId,omitempty"`
	Details   []validation.FieldError `json:"details,omitempty"`
}

// Error codes returned in errorResponse.Code. Call sites pick the code;
// upstream messages never influence it.
const (
	codeInvalidJSON           = "REQUEST_INVALID_JSON"
	codeBodyTooLarge          = "REQUEST_TOO_LARGE"
	codeRequestRejected       = "REQUEST_REJECTED"
	codeAuthInvalidData       = "AUTH_INVALID_DATA"
	codeAuthTokenMissing      = "AUTH_TOKEN_MISSING"
	codeAuthInvalidToken      = "AUTH_INVALID_TOKEN"
	codeAuthFailed            = "AUTH_FAILED"
	codeAuthInvalidCreds      = "AUTH_INVALID_CREDENTIALS"
	codeAuthProviderRejected  = "AUTH_PROVIDER_REJECTED"
	codeAuthProviderUnreached = "AUTH_PROVIDER_UNAVAILABLE"
	codeBookInvalidData       = "BOOK_INVALID_DATA"
	codeBookNotFound          = "BOOK_NOT_FOUND"
	codeBookForbidden         = "BOOK_FORBIDDEN"
	codeStoreRejected         = "STORE_REJECTED"
	codeStoreUnavailable      = "STORE_UNAVAILABLE"
	codeRateLimited           = "RATE_LIMITED"
	codeMethodNotAllowed      = "SYSTEM_METHOD_NOT_ALLOWED"
	codeNotFound              = "SYSTEM_NOT_FOUND"
)

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorDetails(w, status, code, msg, nil)
}

func writeErrorDetails(w http.ResponseWriter, status int, code, msg string, details validation.Errors) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
		Details:   details,
	})
}

func authFailure(err error) (code, msg string) {
	switch {
	case errors.Is(err, app.ErrTokenMissing):
		return codeAuthTokenMissing, "token missing"
	case errors.Is(err, app.ErrInvalidToken):
		return codeAuthInvalidToken, "invalid token"
	default:
		return codeAuthFailed, "authentication failed"
	}
}

// writeRegisterError relays the provider's own message when it refused the
// sign-up. Every register failure is a 400.
func writeRegisterError(w http.ResponseWriter, err error) {
	if msg, ok := upstreamMessage(err); ok {
		writeError(w, http.StatusBadRequest, codeAuthProviderRejected, msg)
		return
	}
	writeError(w, http.StatusBadRequest, codeAuthProviderUnreached, "identity provider unavailable")
}

func writeBookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, codeBookNotFound, "book not found")
		return
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, codeBookForbidden, "forbidden")
		return
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		writeError(w, http.StatusBadRequest, codeStoreRejected, pgErr.Message)
		return
	}
	if msg, ok := upstreamMessage(err); ok {
		writeError(w, http.StatusBadRequest, codeStoreRejected, msg)
		return
	}
	writeError(w, http.StatusBadRequest, codeStoreUnavailable, "data store request failed")
}

type rejection interface {
	error
	StatusCode() int
}

func upstreamMessage(err error) (string, bool) {
	var rej rejection
	if !errors.As(err, &rej) {
		return "", false
	}
	msg := strings.TrimSpace(rej.Error())
	if msg == "" {
		msg = http.StatusText(rej.StatusCode())
	}
	return msg, true
}
