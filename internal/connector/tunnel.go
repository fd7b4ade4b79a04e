package connector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"redirect-proxy-go/internal/model"
)

// bufferedConn keeps bytes the response reader buffered past the CONNECT
// response head.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// tunnel opens a CONNECT tunnel to the authority in the head URI. The
// connection is dialed to r.Addr when set, otherwise to the authority itself.
// Non-2xx answers are returned without a connection.
func (c *HTTPConnector) tunnel(ctx context.Context, r *model.TunnelRequest) (*model.TunnelResponse, error) {
	head := r.Head.Snapshot()
	if head.URI == nil || head.URI.Host == "" {
		return nil, errors.New("tunnel: missing target authority")
	}
	target := head.URI.Host

	addr := r.Addr
	if addr == "" {
		addr = target
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tunnel: dial %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		// Unblock the pending write or read below.
		_ = conn.SetDeadline(time.Unix(1, 0))
	})

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: target},
		Host:   target,
		Header: head.Header,
	}

	c.logger.Debug("tunnel request", "target", target, "addr", addr)

	resp, err := roundTripConnect(conn, connectReq)
	if !stop() || ctx.Err() != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tunnel: %w", context.Cause(ctx))
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tunnel: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	res := &model.TunnelResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	if resp.StatusCode/100 != 2 {
		_ = conn.Close()
		return res, nil
	}
	res.Conn = &bufferedConn{Conn: conn, r: resp.reader}
	return res, nil
}

type connectResponse struct {
	*http.Response
	reader *bufio.Reader
}

func roundTripConnect(conn net.Conn, req *http.Request) (*connectResponse, error) {
	if err := req.Write(conn); err != nil {
		return nil, fmt.Errorf("write CONNECT: %w", err)
	}
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	return &connectResponse{Response: resp, reader: br}, nil
}
