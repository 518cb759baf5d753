package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMaxBodySizeMiddlewareRejectsLargeContentLength(t *testing.T) {
	called := false
	h := maxBodySizeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader("x"))
	req.ContentLength = maxBodyBytes + 1
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if called {
		t.Fatal("handler must not run for oversized bodies")
	}
	if !strings.Contains(rr.Body.String(), "request_too_large") {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestMaxBodySizeMiddlewareCapsChunkedBody(t *testing.T) {
	var readErr error
	h := maxBodySizeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(strings.Repeat("a", int(maxBodyBytes)+10)))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)

	if readErr == nil {
		t.Fatal("expected read to fail past the limit")
	}
}

func TestMaxBodySizeMiddlewareIgnoresGet(t *testing.T) {
	called := false
	h := maxBodySizeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	req.ContentLength = maxBodyBytes + 1
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatal("GET requests pass through")
	}
}
