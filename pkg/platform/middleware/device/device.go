// Package device labels incoming portal requests with a readable device name
// derived from the User-Agent header.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	request "procura/pkg/platform/middleware/request"
)

// Label extracts a human-readable device name from a User-Agent string.
// Returns format: "Browser on OS" (e.g., "Chrome on macOS", "Safari on iPhone").
func Label(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

// Device stores the request's device label in the context for access logging.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := request.WithDevice(r.Context(), Label(r.UserAgent()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
