// Package model defines the request and response shapes shared by the
// proxy, the redirect layer and the connector.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest represents an inbound request to be forwarded upstream.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Path          string
	Query         url.Values
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
