package model

import "io"

// Body is one of NoBody, EmptyBody, BytesBody or *StreamBody.
type Body interface {
	isBody()
}

// NoBody sends no body and no Content-Length.
type NoBody struct{}

// EmptyBody sends a zero-length body with Content-Length: 0.
type EmptyBody struct{}

// BytesBody is a fully buffered body. It can be sent again on a later hop.
type BytesBody []byte

// StreamBody is read once by the connector and cannot be replayed.
type StreamBody struct {
	io.ReadCloser
	Size int64 // -1 when unknown
}

func (NoBody) isBody()      {}
func (EmptyBody) isBody()   {}
func (BytesBody) isBody()   {}
func (*StreamBody) isBody() {}

// Replayable returns the buffered payload of b and whether b may be resent.
func Replayable(b Body) ([]byte, bool) {
	if bb, ok := b.(BytesBody); ok {
		return []byte(bb), true
	}
	return nil, false
}

// Len returns the number of bytes b will send, or -1 when unknown.
// A NoBody reports 0.
func Len(b Body) int64 {
	switch b := b.(type) {
	case BytesBody:
		return int64(len(b))
	case *StreamBody:
		return b.Size
	default:
		return 0
	}
}
