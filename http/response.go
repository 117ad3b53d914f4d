package http

import (
	"errors"
	"io"

	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/kv"
)

// preallocRespHeaders is a guess, adjust if responses tend to carry more.
const preallocRespHeaders = 7

// ResponseHead carries everything about a response except its body.
type ResponseHead struct {
	Code    status.Code
	Headers Headers
	chunked bool
}

func NewResponseHead(code status.Code) *ResponseHead {
	return &ResponseHead{
		Code:    code,
		Headers: kv.NewPrealloc(preallocRespHeaders),
	}
}

// ForceChunked disables length-based framing of the body, making the transport use
// chunked transfer encoding instead.
func (h *ResponseHead) ForceChunked() {
	h.chunked = true
}

func (h *ResponseHead) IsChunked() bool {
	return h.chunked
}

// Response is the head with a body.
type Response struct {
	Head *ResponseHead
	Body body.Body
}

// NewResponse returns a response with 200 OK code and no body.
func NewResponse() *Response {
	return &Response{
		Head: NewResponseHead(status.OK),
		Body: body.Empty(),
	}
}

func (r *Response) Code(code status.Code) *Response {
	r.Head.Code = code
	return r
}

// Header adds a header. Repeated keys are kept.
func (r *Response) Header(key, value string) *Response {
	r.Head.Headers.Add(key, value)
	return r
}

func (r *Response) String(text string) *Response {
	r.Body = body.String(text)
	return r
}

func (r *Response) Bytes(b []byte) *Response {
	r.Body = body.Bytes(b)
	return r
}

// Stream sets a streaming body. Whatever the stream reports last is reported on every
// further fetch, so the stream itself needn't care.
func (r *Response) Stream(s body.Stream) *Response {
	if s == nil {
		r.Body = body.None()
		return r
	}

	r.Body = body.Message(body.Sticky(s))
	return r
}

// Reader sets a body read from the reader. Pass a negative size if it's unknown.
func (r *Response) Reader(reader io.Reader, size int64) *Response {
	hint := body.SizeStream
	if size >= 0 {
		hint = body.Sized(uint64(size))
	}

	return r.Stream(body.FromReader(reader, hint, 0))
}

// Respond is a shorthand for a plain-text response with the code.
func Respond(code status.Code, text string) *Response {
	return NewResponse().Code(code).String(text)
}

// Error renders the error into a response. status.HTTPError errors keep their code,
// others become 500 Internal Server Error.
func Error(err error) *Response {
	var httpErr status.HTTPError
	if errors.As(err, &httpErr) {
		return Respond(httpErr.Code, httpErr.Message)
	}

	return Respond(status.InternalServerError, status.Text(status.InternalServerError))
}
