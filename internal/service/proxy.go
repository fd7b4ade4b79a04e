// Package service implements the core proxy forwarding logic.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"redirect-proxy-go/internal/config"
	"redirect-proxy-go/internal/model"
	"redirect-proxy-go/internal/redirect"
)

const userAgent = "redirect-proxy-go/1.0"

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	upstream redirect.Connector
	cfg      *config.Config
	logger   *slog.Logger
	baseURL  *url.URL
}

// NewProxyService creates a ProxyService that sends every request through
// upstream, normally a redirect-following *redirect.Service.
func NewProxyService(upstream redirect.Connector, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream base_url %q is not absolute", cfg.Upstream.BaseURL)
	}

	return &ProxyService{
		upstream: upstream,
		cfg:      cfg,
		logger:   logger.With("component", "proxy_service"),
		baseURL:  u,
	}, nil
}

// Forward sends a ProxyRequest upstream and returns the final response of the
// redirect chain. The caller is responsible for closing the response body.
//
// Request bodies up to redirect.buffer_body_max_bytes with a known length are
// buffered so that a 307/308 can resend them; larger or chunked bodies are
// streamed once.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if err := s.upstream.Ready(pr.Ctx); err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	body, err := s.requestBody(pr)
	if err != nil {
		return nil, err
	}

	head := &model.RequestHead{
		Method: pr.Method,
		URI:    s.buildUpstreamURL(pr.Path, pr.Query),
		Header: s.filterRequestHeaders(pr.Header),
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
	)

	res, err := s.upstream.Call(pr.Ctx, &model.ClientRequest{
		Head: model.OwnedHead{RequestHead: head},
		Body: body,
		Addr: s.cfg.Upstream.DialAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	cr, ok := res.(*model.ClientResponse)
	if !ok {
		return nil, fmt.Errorf("forward to upstream: unexpected response %T", res)
	}

	return &model.ProxyResponse{
		StatusCode: cr.StatusCode,
		Header:     s.filterResponseHeaders(cr.Header),
		Body:       cr.Body,
	}, nil
}

func (s *ProxyService) requestBody(pr *model.ProxyRequest) (model.Body, error) {
	if pr.Body == nil || pr.Body == http.NoBody {
		return model.NoBody{}, nil
	}

	switch n := pr.ContentLength; {
	case n == 0:
		_ = pr.Body.Close()
		return model.EmptyBody{}, nil
	case n > 0 && n <= s.cfg.Redirect.BufferBodyMaxBytes:
		data, err := io.ReadAll(io.LimitReader(pr.Body, n))
		_ = pr.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		return model.BytesBody(data), nil
	default:
		return &model.StreamBody{ReadCloser: pr.Body, Size: n}, nil
	}
}

func (s *ProxyService) buildUpstreamURL(path string, query url.Values) *url.URL {
	u := *s.baseURL
	u.Path = strings.TrimSuffix(s.baseURL.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = query.Encode()
	u.Fragment = ""
	return &u
}

// filterRequestHeaders copies end-to-end headers. Hop-by-hop headers and
// any header named in Connection are dropped.
func (s *ProxyService) filterRequestHeaders(src http.Header) http.Header {
	dst := filterHopByHop(src)
	if dst.Get("User-Agent") == "" {
		dst.Set("User-Agent", userAgent)
	}
	return dst
}

func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	return filterHopByHop(src)
}

func filterHopByHop(src http.Header) http.Header {
	drop := make(map[string]bool, len(model.HopByHopHeaders))
	for _, h := range model.HopByHopHeaders {
		drop[textproto.CanonicalMIMEHeaderKey(h)] = true
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				drop[textproto.CanonicalMIMEHeaderKey(name)] = true
			}
		}
	}

	dst := make(http.Header, len(src))
	for key, vals := range src {
		if drop[textproto.CanonicalMIMEHeaderKey(key)] {
			continue
		}
		dst[textproto.CanonicalMIMEHeaderKey(key)] = append([]string(nil), vals...)
	}
	return dst
}
