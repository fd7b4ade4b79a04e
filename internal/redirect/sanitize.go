package redirect

import (
	"net/http"
	"net/url"
	"strings"
)

// credentialHeaders never follow a redirect to another origin.
var credentialHeaders = []string{
	"Cookie",
	"Authorization",
	"Proxy-Authorization",
}

// SameOrigin reports whether a and b share scheme, host and explicit port.
// "https://h" and "https://h:443" are different origins here.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Scheme == b.Scheme &&
		a.Hostname() == b.Hostname() &&
		a.Port() == b.Port()
}

// Sanitize removes credential headers from h when next is a different
// origin than prev and reports whether anything was removed. Keys are
// matched case-insensitively, including non-canonical map keys.
func Sanitize(h http.Header, prev, next *url.URL) bool {
	if SameOrigin(prev, next) {
		return false
	}

	stripped := false
	for key := range h {
		for _, name := range credentialHeaders {
			if strings.EqualFold(key, name) {
				delete(h, key)
				stripped = true
			}
		}
	}
	return stripped
}
