package middleware

import (
	"net/http"

	"payslip/internal/transport/http/api"
)

// BodyLimit caps request bodies. Requests that declare a larger
// Content-Length are refused before the handler runs.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil && r.Body != http.NoBody {
				if r.ContentLength > maxBytes {
					api.Fail(w, http.StatusRequestEntityTooLarge, api.CodeTooLarge, "request body too large", GetRequestID(r.Context()))
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
