package util

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
)

// WithRecover turns a handler panic into a 500 JSON response.
func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			LoggerFromContext(r.Context()).Error("panic recovered",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":     "internal server error",
				"code":      "SYSTEM_INTERNAL_ERROR",
				"requestId": RequestIDFromRequest(r),
			})
		}()
		next.ServeHTTP(w, r)
	})
}
