package model

import (
	"net/http"
	"net/url"
)

// RequestHead is the method, target and headers of an outbound request.
type RequestHead struct {
	Method string
	URI    *url.URL
	Header http.Header
}

// Clone returns a deep copy of h.
func (h *RequestHead) Clone() *RequestHead {
	c := &RequestHead{
		Method: h.Method,
		Header: h.Header.Clone(),
	}
	if h.URI != nil {
		u := *h.URI
		c.URI = &u
	}
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return c
}

// HeadType is either an OwnedHead or a SharedHead.
type HeadType interface {
	// Snapshot returns an owned copy of the head that is safe to mutate.
	Snapshot() *RequestHead
	isHeadType()
}

// OwnedHead is a head used by exactly one request.
type OwnedHead struct {
	*RequestHead
}

// Snapshot implements HeadType.
func (h OwnedHead) Snapshot() *RequestHead { return h.RequestHead.Clone() }

func (OwnedHead) isHeadType() {}

// SharedHead is a head replayed across many requests. Base is never mutated;
// Extra holds per-request headers that replace Base values with the same key.
type SharedHead struct {
	Base  *RequestHead
	Extra http.Header
}

// Snapshot implements HeadType.
func (h SharedHead) Snapshot() *RequestHead {
	c := h.Base.Clone()
	for k, vs := range h.Extra {
		c.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return c
}

func (SharedHead) isHeadType() {}

// Header returns the effective headers of h without copying Base when no
// extra headers are set.
func (h SharedHead) Header() http.Header {
	if len(h.Extra) == 0 {
		return h.Base.Header
	}
	return h.Snapshot().Header
}
