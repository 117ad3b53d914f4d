package http

import (
	"net"

	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/kv"
	"github.com/indigo-web/utils/strcomp"
)

type (
	Headers = *kv.Storage
	Header  = kv.Pair
)

const (
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
)

// Request represents an HTTP request.
type Request struct {
	// Method is kept exactly as received, e.g. GET.
	Method string
	// Path is the raw request target.
	Path string
	// Proto is the protocol version token, e.g. HTTP/1.1.
	Proto string
	// Headers holds non-normalized header pairs, even though lookup is case-insensitive.
	Headers Headers
	// Body holds the request body. It is valid until the response is written.
	Body body.Body
	// Remote holds the remote address of the connection.
	Remote net.Addr
}

func NewRequest(remote net.Addr) *Request {
	return &Request{
		Proto:   HTTP11,
		Headers: kv.NewPrealloc(10),
		Body:    body.None(),
		Remote:  remote,
	}
}

// KeepAlive reports whether the connection may be reused after the request.
func (r *Request) KeepAlive() bool {
	switch r.Proto {
	case HTTP10:
		return strcomp.EqualFold(r.Headers.Value("Connection"), "keep-alive")
	default:
		// in case of HTTP/1.1, keep-alive may be only disabled
		return !strcomp.EqualFold(r.Headers.Value("Connection"), "close")
	}
}

// Clear resets the request, so it can be reused for the next one.
func (r *Request) Clear() {
	r.Method, r.Path, r.Proto = "", "", HTTP11
	r.Headers.Clear()
	r.Body = body.None()
}
