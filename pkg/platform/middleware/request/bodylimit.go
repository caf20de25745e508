package request

import (
	"net/http"
)

const tooLargeBody = `{"error":"request_too_large","error_description":"request body too large"}`

// BodyLimit caps request bodies at maxBytes. Bodies that declare a larger
// Content-Length are refused with 413 before the handler runs; undeclared
// bodies fail on read past the cap.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeJSONError(w, http.StatusRequestEntityTooLarge, tooLargeBody)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
