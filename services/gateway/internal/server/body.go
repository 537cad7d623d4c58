package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"bookshelf/internal/validation"
)

const maxBodyBytes = 1 << 20

var errTrailingData = errors.New("trailing data after JSON value")

// readObject decodes the request body into a JSON object. An empty body
// reads as {}. Any other non-object is reported as a validation failure
// under invalidCode and invalidMsg. Trailing data after the value is
// malformed JSON. It writes the error response itself when ok is false.
func readObject(w http.ResponseWriter, r *http.Request, invalidCode, invalidMsg string) (map[string]any, bool) {
	var body any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(&body)
	if err == nil {
		if extra := dec.Decode(new(json.RawMessage)); !errors.Is(extra, io.EOF) {
			err = extra
			if err == nil {
				err = errTrailingData
			}
		}
	}
	switch {
	case errors.Is(err, io.EOF):
		return map[string]any{}, true
	case err != nil:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBodyTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "invalid JSON body")
		return nil, false
	}
	obj, ok := body.(map[string]any)
	if !ok {
		writeErrorDetails(w, http.StatusBadRequest, invalidCode, invalidMsg, validation.Errors{
			{Field: "body", Reason: "must be a JSON object"},
		})
		return nil, false
	}
	return obj, true
}
