package redirect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"redirect-proxy-go/internal/metrics"
	"redirect-proxy-go/internal/model"
)

// maxDrainBytes bounds how much of a redirect body is read before the
// connection is given back.
const maxDrainBytes = 64 << 10

// Connector performs one physical exchange per call. Implementations must be
// safe for concurrent use.
type Connector interface {
	Call(ctx context.Context, req model.ConnectRequest) (model.ConnectResponse, error)
	// Ready blocks until the connector can accept a call or ctx is done.
	Ready(ctx context.Context) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for per-hop debug logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With("component", "redirect")
	}
}

// WithMetrics records hop and outcome metrics. A nil m disables recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service follows redirects for client requests and passes tunnel requests
// through. It is itself a Connector and safe for concurrent use.
type Service struct {
	policy    Policy
	connector Connector
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func newService(p Policy, next Connector, opts ...Option) *Service {
	s := &Service{
		policy:    p,
		connector: next,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the policy the Service was built with.
func (s *Service) Policy() Policy { return s.policy }

// Ready forwards to the wrapped connector.
func (s *Service) Ready(ctx context.Context) error {
	return s.connector.Ready(ctx)
}

// Call sends req and follows redirects until a non-redirect response arrives,
// the budget is spent or an error occurs. Connector errors are returned
// unchanged.
func (s *Service) Call(ctx context.Context, req model.ConnectRequest) (model.ConnectResponse, error) {
	switch r := req.(type) {
	case *model.TunnelRequest:
		return s.connector.Call(ctx, r)
	case *model.ClientRequest:
		return s.follow(ctx, r)
	default:
		return nil, fmt.Errorf("redirect: unsupported request type %T", req)
	}
}

// hop is the state carried from one physical request to the next. A new
// value replaces the old one on every redirect.
type hop struct {
	remaining uint8
	uri       *url.URL
	method    string
	header    http.Header
	body      []byte
	replay    bool // body is resent on a strict redirect
	streamed  bool // a non-replayable body was sent on this hop
	stripped  bool // credential headers were removed reaching this hop
	addr      string
}

func (s *Service) follow(ctx context.Context, req *model.ClientRequest) (model.ConnectResponse, error) {
	head := req.Head.Snapshot()
	cur := &hop{
		remaining: s.policy.MaxRedirectTimes,
		uri:       head.URI,
		method:    head.Method,
		header:    head.Header,
		addr:      req.Addr,
	}
	switch b := req.Body.(type) {
	case model.BytesBody:
		cur.body, cur.replay = b, true
	case *model.StreamBody:
		cur.streamed = true
	}

	followed := 0
	res, err := s.connector.Call(ctx, req)
	for {
		if err != nil {
			s.finish(metrics.OutcomeError, followed)
			return nil, err
		}

		cr, ok := res.(*model.ClientResponse)
		if !ok || cr == nil {
			panic(fmt.Sprintf("redirect: connector answered a client request with %T", res))
		}

		if !isRedirectStatus(cr.StatusCode) {
			s.finish(metrics.OutcomeFinal, followed)
			return cr, nil
		}
		if cur.remaining == 0 {
			s.logger.Debug("redirect budget exhausted",
				"status", cr.StatusCode,
				"followed", followed,
				"location", cr.Header.Get("Location"),
			)
			s.finish(metrics.OutcomeBudgetExhausted, followed)
			return cr, nil
		}

		next, nextReq, advErr := cur.advance(cr.StatusCode, cr.Header, s.policy)
		discard(cr.Body)
		if advErr != nil {
			s.finish(metrics.OutcomeError, followed)
			return nil, advErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.finish(metrics.OutcomeError, followed)
			return nil, ctxErr
		}

		s.logger.Debug("following redirect",
			"status", cr.StatusCode,
			"from", cur.uri.Redacted(),
			"to", next.uri.Redacted(),
			"method", next.method,
			"remaining", next.remaining,
			"credentials_stripped", next.stripped,
		)
		if s.metrics != nil {
			s.metrics.RedirectHops.WithLabelValues(strconv.Itoa(cr.StatusCode)).Inc()
			if next.stripped {
				s.metrics.RedirectStripped.Inc()
			}
		}

		cur = next
		followed++
		res, err = s.connector.Call(ctx, nextReq)
	}
}

// advance builds the state and request of the hop that follows a redirect
// with the given status and response headers.
func (h *hop) advance(status int, respHeader http.Header, p Policy) (*hop, *model.ClientRequest, error) {
	nextURI, err := ResolveNext(h.uri, respHeader)
	if err != nil {
		return nil, nil, err
	}

	next := &hop{
		remaining: h.remaining - 1,
		uri:       nextURI,
		method:    h.method,
		header:    h.header.Clone(),
		addr:      h.addr,
	}

	var body model.Body = model.NoBody{}
	if isStrictRedirect(status) {
		switch {
		case h.replay:
			next.body, next.replay = h.body, true
			body = model.BytesBody(h.body)
		case h.streamed && p.RejectNonReplayable:
			return nil, nil, fmt.Errorf("%w: %d to %s", ErrNonReplayableBody, status, nextURI.Redacted())
		}
	} else if h.method != http.MethodGet && h.method != http.MethodHead {
		next.method = http.MethodGet
	}

	next.stripped = Sanitize(next.header, h.uri, nextURI)

	req := &model.ClientRequest{
		Head: model.OwnedHead{RequestHead: &model.RequestHead{
			Method: next.method,
			URI:    nextURI,
			Header: next.header.Clone(),
		}},
		Body: body,
		Addr: h.addr,
	}
	return next, req, nil
}

func (s *Service) finish(outcome string, followed int) {
	if s.metrics == nil {
		return
	}
	s.metrics.RedirectOutcomes.WithLabelValues(outcome).Inc()
	s.metrics.RedirectChainLength.Observe(float64(followed))
}

// discard drains and closes a redirect response body so the underlying
// connection can be reused.
func discard(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, body, maxDrainBytes)
	_ = body.Close()
}
