package redirect

import (
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpguts"
)

// isRedirectStatus reports whether the status code is followed by the Service.
func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}

// isStrictRedirect reports whether the status requires method and body to
// be preserved.
func isStrictRedirect(code int) bool {
	return code == http.StatusTemporaryRedirect || code == http.StatusPermanentRedirect
}

// ResolveNext computes the target of a redirect from the response headers
// and the URI of the request that produced them.
//
// An absolute Location (scheme and host) is used as-is. Anything else keeps
// the scheme and authority of prev and takes path and query from Location,
// resolving dot segments and non-rooted paths against prev. A
// scheme-relative Location ("//host/p") counts as relative: its authority is
// ignored and the redirect stays on prev's origin at "/p".
func ResolveNext(prev *url.URL, header http.Header) (*url.URL, error) {
	values := header.Values("Location")
	if len(values) == 0 {
		return nil, ErrMissingLocationHeader
	}
	return resolveLocation(prev, values[0])
}

func resolveLocation(prev *url.URL, location string) (*url.URL, error) {
	if location == "" || !httpguts.ValidHeaderFieldValue(location) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}

	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}
	if ref.Opaque != "" {
		return nil, fmt.Errorf("%w: %q is not a hierarchical URI", ErrInvalidLocation, location)
	}

	if ref.Scheme != "" && ref.Host != "" {
		ref.Fragment = ""
		ref.RawFragment = ""
		return ref, nil
	}

	if prev == nil || prev.Scheme == "" || prev.Host == "" {
		return nil, fmt.Errorf("%w: previous URI %q has no scheme or authority", ErrURIBuild, prev)
	}

	return prev.ResolveReference(&url.URL{
		Path:       ref.Path,
		RawPath:    ref.RawPath,
		RawQuery:   ref.RawQuery,
		ForceQuery: ref.ForceQuery,
	}), nil
}
