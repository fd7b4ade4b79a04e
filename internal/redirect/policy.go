package redirect

// DefaultMaxRedirectTimes is the hop budget of DefaultPolicy.
const DefaultMaxRedirectTimes uint8 = 10

// Policy configures a Service. The zero value follows no redirects.
type Policy struct {
	// MaxRedirectTimes is the number of redirects followed per exchange.
	MaxRedirectTimes uint8

	// RejectNonReplayable makes a 307/308 on a streamed body fail with
	// ErrNonReplayableBody instead of resending the request without a body.
	RejectNonReplayable bool
}

// DefaultPolicy follows up to DefaultMaxRedirectTimes redirects.
func DefaultPolicy() Policy {
	return Policy{MaxRedirectTimes: DefaultMaxRedirectTimes}
}

// WithMaxRedirectTimes returns a copy of p with the hop budget set to n.
func (p Policy) WithMaxRedirectTimes(n uint8) Policy {
	p.MaxRedirectTimes = n
	return p
}

// WithRejectNonReplayable returns a copy of p with RejectNonReplayable set.
func (p Policy) WithRejectNonReplayable(reject bool) Policy {
	p.RejectNonReplayable = reject
	return p
}

// Wrap returns a Service that follows redirects in front of next.
func (p Policy) Wrap(next Connector, opts ...Option) *Service {
	return newService(p, next, opts...)
}

// Middleware decorates a Connector.
type Middleware func(next Connector) Connector

// Middleware returns p as a Middleware so it can be stacked with other
// decorators through Chain.
func (p Policy) Middleware(opts ...Option) Middleware {
	return func(next Connector) Connector {
		return p.Wrap(next, opts...)
	}
}

// Chain applies mws to c so that the first middleware is the outermost.
func Chain(c Connector, mws ...Middleware) Connector {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}
