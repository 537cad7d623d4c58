package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveWithHeaders(trusted *TrustedProxies, req *http.Request) http.Header {
	h := WithSecurityHeaders(trusted, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Header()
}

func TestWithSecurityHeaders(t *testing.T) {
	got := serveWithHeaders(nil, httptest.NewRequest(http.MethodGet, "/", nil))
	for k, want := range apiSecurityHeaders {
		if got.Get(k) != want {
			t.Errorf("%s = %q, want %q", k, got.Get(k), want)
		}
	}
	if v := got.Get("Strict-Transport-Security"); v != "" {
		t.Fatalf("did not expect HSTS for plain http, got %q", v)
	}
}

func TestWithSecurityHeadersForwardedProtoNeedsTrustedPeer(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"loopback"})
	if err != nil {
		t.Fatalf("trusted proxies: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:5000"
	req.Header.Set("X-Forwarded-Proto", "https")
	if v := serveWithHeaders(trusted, req).Get("Strict-Transport-Security"); v != "" {
		t.Fatalf("untrusted peer must not switch on HSTS, got %q", v)
	}

	req.RemoteAddr = "127.0.0.1:5000"
	if v := serveWithHeaders(trusted, req).Get("Strict-Transport-Security"); v == "" {
		t.Fatalf("expected HSTS behind a trusted proxy")
	}
}
