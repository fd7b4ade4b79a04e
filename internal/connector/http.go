// Package connector sends ConnectRequests over the network.
package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"redirect-proxy-go/internal/config"
	"redirect-proxy-go/internal/metrics"
	"redirect-proxy-go/internal/model"
)

// ErrBusy is returned by Ready when the upstream request budget is spent.
var ErrBusy = errors.New("connector: upstream capacity exhausted")

// HTTPConnector performs exactly one HTTP exchange per call. It never follows
// redirects itself; that is left to the layer in front of it.
//
// Requests carrying an Addr use a client whose transport dials only that
// address, so pooled connections are never shared between dial targets.
type HTTPConnector struct {
	httpClient *http.Client
	dialer     *net.Dialer
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *metrics.Metrics

	idleConns int
	timeout   time.Duration

	mu     sync.Mutex
	pinned map[string]*http.Client
}

// NewHTTPConnector creates an HTTPConnector with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewHTTPConnector(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *HTTPConnector {
	c := &HTTPConnector{
		dialer: &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		},
		logger:    logger.With("component", "connector"),
		metrics:   m,
		idleConns: cfg.Upstream.IdleConnections,
		timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		pinned:    make(map[string]*http.Client),
	}
	c.httpClient = c.newClient(c.dialer.DialContext)

	if rps := cfg.Upstream.RequestsPerSecond; rps > 0 {
		burst := int(math.Ceil(rps))
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return c
}

// Ready waits until the upstream request budget allows another exchange.
// Without a configured rate it returns immediately.
func (c *HTTPConnector) Ready(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return nil
}

// Call sends req. A ClientRequest yields a *model.ClientResponse whose body
// the caller must close; a TunnelRequest yields a *model.TunnelResponse.
func (c *HTTPConnector) Call(ctx context.Context, req model.ConnectRequest) (model.ConnectResponse, error) {
	switch r := req.(type) {
	case *model.ClientRequest:
		res, err := c.send(ctx, r)
		if err != nil {
			return nil, err
		}
		return res, nil
	case *model.TunnelRequest:
		res, err := c.tunnel(ctx, r)
		if err != nil {
			return nil, err
		}
		return res, nil
	default:
		return nil, fmt.Errorf("connector: unsupported request type %T", req)
	}
}

func (c *HTTPConnector) send(ctx context.Context, r *model.ClientRequest) (*model.ClientResponse, error) {
	head := r.Head.Snapshot()
	if head.URI == nil {
		return nil, errors.New("build upstream request: missing URI")
	}

	body, length := requestBody(r.Body)

	req, err := http.NewRequestWithContext(ctx, head.Method, head.URI.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = head.Header
	req.ContentLength = length

	c.logger.Debug("upstream request",
		"method", req.Method,
		"url", head.URI.Redacted(),
	)

	start := time.Now()
	resp, err := c.clientFor(r.Addr).Do(req) //nolint:bodyclose // body ownership transfers to caller via ClientResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.ClientResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// requestBody maps a model body onto the body and length net/http expects.
func requestBody(b model.Body) (io.Reader, int64) {
	switch b := b.(type) {
	case model.EmptyBody:
		return http.NoBody, 0
	case model.BytesBody:
		return bytes.NewReader(b), int64(len(b))
	case *model.StreamBody:
		return b.ReadCloser, b.Size
	default:
		return nil, 0
	}
}

func (c *HTTPConnector) newClient(dial func(ctx context.Context, network, addr string) (net.Conn, error)) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        c.idleConns,
			MaxIdleConnsPerHost: c.idleConns,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DialContext:         dial,
		},
		Timeout: c.timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// clientFor returns the client for a dial target. An empty addr dials the
// URI host through the shared client.
func (c *HTTPConnector) clientFor(addr string) *http.Client {
	if addr == "" {
		return c.httpClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.pinned[addr]; ok {
		return hc
	}
	hc := c.newClient(func(ctx context.Context, network, _ string) (net.Conn, error) {
		return c.dialer.DialContext(ctx, network, addr)
	})
	c.pinned[addr] = hc
	return hc
}
