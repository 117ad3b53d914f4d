package http1

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/config"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/internal/server/tcp"
	"github.com/indigo-web/strand/internal/strutil"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

var headTerminator = []byte("\r\n\r\n")

// Reader reads requests off the client. Strings of a request refer to the reader's
// internal buffer, so the request is valid only until the next Read.
type Reader struct {
	client tcp.Client
	cfg    config.HTTP
	head   []byte
	body   requestBody
}

func NewReader(client tcp.Client, cfg config.HTTP) *Reader {
	return &Reader{
		client: client,
		cfg:    cfg,
		head:   make([]byte, 0, cfg.RequestLineSize),
		body: requestBody{
			client:  client,
			maxSize: uint64(cfg.MaxBodySize),
			done:    true,
		},
	}
}

// Read reads the next request head into req and prepares its body. A deadline exceeded
// before the first byte of the request is returned as is, whereas one exceeded in the
// middle results in status.ErrRequestTimeout.
func (r *Reader) Read(req *http.Request) error {
	r.head = r.head[:0]
	limit := r.cfg.RequestLineSize + r.cfg.HeadersSize

	for {
		data, err := r.client.Read()
		if err != nil {
			if len(r.head) > 0 {
				if tcp.IsTimeout(err) {
					return status.ErrRequestTimeout
				}

				if errors.Is(err, io.EOF) {
					return io.ErrUnexpectedEOF
				}
			}

			return err
		}

		// the terminator might be split between two reads
		from := max(0, len(r.head)-len(headTerminator)+1)
		r.head = append(r.head, data...)

		if end := bytes.Index(r.head[from:], headTerminator); end != -1 {
			end += from + len(headTerminator)
			r.client.Pushback(r.head[end:])
			r.head = r.head[:end]

			return r.parse(req, uf.B2S(r.head[:end-len(headTerminator)]))
		}

		if len(r.head) > limit {
			if bytes.IndexByte(r.head, '\n') == -1 {
				return status.ErrTooLongRequestLine
			}

			return status.ErrHeaderFieldsTooLarge
		}
	}
}

func (r *Reader) parse(req *http.Request, head string) error {
	line, headers, _ := strings.Cut(head, "\r\n")
	if len(line) > r.cfg.RequestLineSize {
		return status.ErrTooLongRequestLine
	}

	if len(headers) > r.cfg.HeadersSize {
		return status.ErrHeaderFieldsTooLarge
	}

	method, rest, found := strings.Cut(line, " ")
	if !found || len(method) == 0 {
		return status.ErrBadRequest
	}

	path, proto, found := strings.Cut(rest, " ")
	if !found || len(path) == 0 {
		return status.ErrBadRequest
	}

	switch proto {
	case http.HTTP10, http.HTTP11:
	default:
		if strings.HasPrefix(proto, "HTTP/") {
			return status.ErrHTTPVersionNotSupported
		}

		return status.ErrBadRequest
	}

	req.Method, req.Path, req.Proto = method, path, proto

	for len(headers) > 0 {
		var field string
		field, headers, _ = strings.Cut(headers, "\r\n")

		key, value, found := strings.Cut(field, ":")
		if !found || len(key) == 0 || strutil.RStripWS(key) != key {
			return status.ErrBadRequest
		}

		if req.Headers.Len() >= r.cfg.HeadersNumber {
			return status.ErrHeaderFieldsTooLarge
		}

		req.Headers.Add(key, strutil.StripWS(value))
	}

	return r.initBody(req)
}

func (r *Reader) initBody(req *http.Request) error {
	b := &r.body
	b.reset()

	if te, found := req.Headers.Get("Transfer-Encoding"); found {
		if !strcomp.EqualFold(te, "chunked") {
			return status.ErrUnsupportedEncoding
		}

		b.chunked, b.done = true, false
		b.parser = chunkedbody.NewParser(chunkedbody.DefaultSettings())
		req.Body = body.Message(b)

		return nil
	}

	cl, found := req.Headers.Get("Content-Length")
	if !found {
		req.Body = body.None()
		return nil
	}

	length, err := strconv.ParseUint(cl, 10, 64)
	if err != nil {
		return status.ErrBadRequest
	}

	if length > b.maxSize {
		return status.ErrBodyTooLarge
	}

	if length == 0 {
		req.Body = body.Empty()
		return nil
	}

	b.left, b.done = length, false
	req.Body = body.Message(b)

	return nil
}

// Discard consumes the unread rest of the current request body, so the next request
// can be read.
func (r *Reader) Discard() error {
	for {
		_, err := r.body.Fetch(context.Background())
		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

// requestBody streams the body of the current request right off the client.
type requestBody struct {
	client   tcp.Client
	parser   *chunkedbody.Parser
	chunked  bool
	left     uint64
	received uint64
	maxSize  uint64
	done     bool
	err      error
}

func (b *requestBody) reset() {
	b.chunked, b.parser = false, nil
	b.left, b.received = 0, 0
	b.done, b.err = true, nil
}

func (b *requestBody) Size() body.Size {
	if b.chunked {
		return body.SizeStream
	}

	return body.Sized(b.left + b.received)
}

func (b *requestBody) Fetch(ctx context.Context) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.done {
		return nil, io.EOF
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		chunk []byte
		err   error
	)

	if b.chunked {
		chunk, err = b.readChunked()
	} else {
		chunk, err = b.readPlain()
	}

	switch err {
	case nil:
	case io.EOF:
		b.done = true
		if len(chunk) > 0 {
			return chunk, nil
		}
	default:
		b.err = err
	}

	return chunk, err
}

func (b *requestBody) readPlain() ([]byte, error) {
	data, err := b.client.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return nil, err
	}

	if uint64(len(data)) < b.left {
		b.left -= uint64(len(data))
		b.received += uint64(len(data))

		return data, nil
	}

	chunk, rest := data[:b.left], data[b.left:]
	b.client.Pushback(rest)
	b.received += b.left
	b.left = 0

	return chunk, io.EOF
}

func (b *requestBody) readChunked() ([]byte, error) {
	for {
		data, err := b.client.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return nil, err
		}

		chunk, extra, err := b.parser.Parse(data, false)
		switch err {
		case nil, io.EOF:
		default:
			return nil, status.ErrBadRequest
		}

		received, overflows := addUint(b.received, uint64(len(chunk)))
		if overflows || received > b.maxSize {
			return nil, status.ErrBodyTooLarge
		}

		b.received = received
		b.client.Pushback(extra)

		if len(chunk) > 0 || err != nil {
			return chunk, err
		}
	}
}

func addUint(x, y uint64) (uint64, bool) {
	return x + y, math.MaxUint64-x < y
}
