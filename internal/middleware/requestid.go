// Package middleware provides HTTP middleware for Vanguard.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/vanguard-ai/vanguard/internal/logger"
)

const (
	headerRequestID = "X-Request-ID"
	maxRequestIDLen = 64
)

// RequestID attaches a correlation ID to every request: the inbound
// X-Request-ID when a caller supplies one, otherwise a fresh random ID.
// The ID rides the request context for log correlation and is echoed on
// the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = newRequestID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
