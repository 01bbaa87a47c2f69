package handlers

import (
	"net/http"
	"strings"

	"github.com/maplecart/orders/internal/platform/requestctx"
)

// CallerIDHeader carries the identity of the actor issuing a request.
const CallerIDHeader = "X-Caller-ID"

// CallerMiddleware copies the caller identity header onto the request context
// so downstream services can attribute commands and audit entries.
func CallerMiddleware(header string) func(http.Handler) http.Handler {
	header = strings.TrimSpace(header)
	if header == "" {
		header = CallerIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID := strings.TrimSpace(r.Header.Get(header))
			if callerID != "" {
				r = r.WithContext(requestctx.WithCaller(r.Context(), callerID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
