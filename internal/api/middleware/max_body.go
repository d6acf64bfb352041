package middleware

import (
	"net/http"

	"github.com/cloo-solutions/groundwork/internal/api"
)

// DefaultJSONBodyBytes bounds bodies of routes that take a small JSON request.
const DefaultJSONBodyBytes int64 = 1 << 20

// MaxBodyBytes caps the request body at limit. A declared Content-Length over the limit is
// refused before the handler runs; a chunked body fails with the same 413 once a handler
// decoding through api.DecodeJSON reads past it. Limits nest, so a route can tighten a
// limit applied by an outer router but cannot raise it.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				api.TooLarge(w, limit)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
