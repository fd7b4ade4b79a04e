// Package redirect follows HTTP redirects in front of a Connector.
//
// A Service wraps a Connector and turns one logical client request into as
// many physical requests as the redirect chain needs:
//
//	svc := redirect.DefaultPolicy().WithMaxRedirectTimes(5).Wrap(conn)
//	res, err := svc.Call(ctx, &model.ClientRequest{Head: head, Body: body})
//
// # Method and body rules
//
// 301, 302 and 303 switch the method to GET (GET and HEAD are kept) and drop
// the body. 307 and 308 keep the method and resend a model.BytesBody
// unchanged; any other body is dropped, or rejected with
// ErrNonReplayableBody when the policy asks for it.
//
// # Credentials
//
// Cookie, Authorization and Proxy-Authorization are removed whenever a hop
// changes scheme, host or port.
//
// # Budget
//
// When the budget is spent the last 3xx response is returned as a success
// so that the caller can inspect Location itself. A budget of zero disables
// following.
//
// Tunnel requests are passed to the Connector untouched.
package redirect
