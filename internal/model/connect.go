package model

import (
	"io"
	"net"
	"net/http"
)

// ConnectRequest is either a *TunnelRequest or a *ClientRequest.
type ConnectRequest interface {
	isConnectRequest()
}

// TunnelRequest asks the connector to open a raw tunnel with CONNECT.
type TunnelRequest struct {
	Head HeadType
	Addr string
}

// ClientRequest is a full request with a body. Addr, when set, is the
// host:port the connector dials instead of the URI host; connections dialed
// for one Addr are pooled apart from every other target.
type ClientRequest struct {
	Head HeadType
	Body Body
	Addr string
}

func (*TunnelRequest) isConnectRequest() {}
func (*ClientRequest) isConnectRequest() {}

// ConnectResponse is either a *TunnelResponse or a *ClientResponse.
type ConnectResponse interface {
	isConnectResponse()
}

// TunnelResponse carries the CONNECT response head and, on success, the
// established connection. The caller owns Conn.
type TunnelResponse struct {
	StatusCode int
	Header     http.Header
	Conn       net.Conn
}

// ClientResponse is the response to a ClientRequest. The caller owns Body.
type ClientResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

func (*TunnelResponse) isConnectResponse() {}
func (*ClientResponse) isConnectResponse() {}
