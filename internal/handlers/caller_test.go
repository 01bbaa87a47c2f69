package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maplecart/orders/internal/platform/requestctx"
)

func TestCallerMiddlewareSetsContext(t *testing.T) {
	var capturedCaller string
	var capturedOK bool

	handler := CallerMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCaller, capturedOK = requestctx.Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(CallerIDHeader, "  user-1  ")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if !capturedOK {
		t.Fatalf("expected caller to be set")
	}
	if capturedCaller != "user-1" {
		t.Fatalf("expected caller user-1, got %q", capturedCaller)
	}
}

func TestCallerMiddlewareMissingHeader(t *testing.T) {
	var capturedOK bool

	handler := CallerMiddleware(CallerIDHeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, capturedOK = requestctx.Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if capturedOK {
		t.Fatalf("expected no caller on context")
	}
}

func TestCallerMiddlewareCustomHeader(t *testing.T) {
	var capturedCaller string

	handler := CallerMiddleware("X-Operator-ID")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCaller, _ = requestctx.Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("X-Operator-ID", "ops-7")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if capturedCaller != "ops-7" {
		t.Fatalf("expected caller ops-7, got %q", capturedCaller)
	}
}
