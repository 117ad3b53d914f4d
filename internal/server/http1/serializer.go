package http1

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/utils/strcomp"
)

const (
	crlf             = "\r\n"
	colonsp          = ": "
	contentLength    = "Content-Length: "
	transferEncoding = "Transfer-Encoding: chunked\r\n"
	connectionClose  = "Connection: close\r\n"
)

var chunkedFinalizer = []byte("0\r\n\r\n")

var (
	// ErrCloseConnection is returned when the response can't be followed by another one,
	// e.g. its body is delimited by closing the connection.
	ErrCloseConnection = errors.New("connection must be closed")
	// ErrLengthMismatch is returned when a sized body produced a different number of
	// bytes than it announced.
	ErrLengthMismatch = errors.New("body length mismatches its size")
)

type Writer interface {
	Write([]byte) error
}

type framing uint8

const (
	framingNone framing = iota
	framingLength
	framingChunked
	framingClose
)

// Serializer renders responses. The head and small body chunks are accumulated in the
// buffer and flushed together, whereas chunks bigger than the buffer are written out
// directly.
type Serializer struct {
	writer     Writer
	buff       []byte
	bufferSize int
}

func NewSerializer(writer Writer, bufferSize int) *Serializer {
	return &Serializer{
		writer:     writer,
		buff:       make([]byte, 0, bufferSize),
		bufferSize: bufferSize,
	}
}

// Write renders the response to a request with the given protocol and method. The
// body is fetched till the end, unless the request method is HEAD or the response code
// forbids a body at all. If keepAlive is false, the Connection: close header is added.
func (s *Serializer) Write(
	ctx context.Context, proto, method string, head *http.ResponseHead, b body.Stream, keepAlive bool,
) error {
	defer s.clear()

	if proto != http.HTTP10 {
		proto = http.HTTP11
	}

	s.renderResponseLine(proto, head.Code)
	s.renderHeaders(head)

	size, frame := b.Size(), framingNone
	if status.HasBody(head.Code) {
		switch {
		case size.IsStream() || head.IsChunked():
			frame = framingChunked
			if proto == http.HTTP10 {
				// HTTP/1.0 has no chunked encoding, so the body ends with the connection
				frame, keepAlive = framingClose, false
			}
		default:
			frame = framingLength
		}
	}

	if !keepAlive {
		s.buff = append(s.buff, connectionClose...)
	}

	switch frame {
	case framingLength:
		s.buff = strconv.AppendUint(append(s.buff, contentLength...), size.Len(), 10)
		s.crlf()
	case framingChunked:
		s.buff = append(s.buff, transferEncoding...)
	}

	s.crlf()

	var err error
	if method == "HEAD" || frame == framingNone {
		// HEAD request responses must be similar to GET request responses, except
		// forced lack of body, even if Content-Length is specified
		err = s.flush()
	} else {
		err = s.writeBody(ctx, b, frame, size.Len())
	}

	if err == nil && frame == framingClose {
		err = ErrCloseConnection
	}

	return err
}

func (s *Serializer) writeBody(ctx context.Context, b body.Stream, frame framing, length uint64) error {
	var written uint64

	for {
		chunk, err := b.Fetch(ctx)
		if len(chunk) > 0 {
			written += uint64(len(chunk))

			var werr error
			if frame == framingChunked {
				werr = s.writeChunk(chunk)
			} else {
				werr = s.write(chunk)
			}

			if werr != nil {
				return werr
			}
		}

		switch err {
		case nil:
		case io.EOF:
			switch frame {
			case framingChunked:
				s.buff = append(s.buff, chunkedFinalizer...)
			case framingLength:
				if written != length {
					return ErrLengthMismatch
				}
			}

			return s.flush()
		default:
			return err
		}
	}
}

// writeChunk frames the chunk. Empty chunks are never written, as an empty chunk
// terminates the body.
func (s *Serializer) writeChunk(chunk []byte) error {
	s.buff = strconv.AppendUint(s.buff, uint64(len(chunk)), 16)
	s.crlf()

	if err := s.write(chunk); err != nil {
		return err
	}

	s.crlf()
	return nil
}

// write appends the data to the buffer, flushing it if needed. Data bigger than the
// buffer itself is written directly, avoiding an extra copy.
func (s *Serializer) write(data []byte) error {
	if len(s.buff)+len(data) <= s.bufferSize {
		s.buff = append(s.buff, data...)
		return nil
	}

	if err := s.flush(); err != nil {
		return err
	}

	if len(data) >= s.bufferSize {
		return s.writer.Write(data)
	}

	s.buff = append(s.buff, data...)
	return nil
}

func (s *Serializer) flush() error {
	if len(s.buff) == 0 {
		return nil
	}

	err := s.writer.Write(s.buff)
	s.buff = s.buff[:0]

	return err
}

func (s *Serializer) renderResponseLine(proto string, code status.Code) {
	s.buff = append(s.buff, proto...)
	s.sp()
	s.buff = strconv.AppendUint(s.buff, uint64(code), 10)
	s.sp()
	s.buff = append(s.buff, status.Text(code)...)
	s.crlf()
}

// renderHeaders renders all the headers except those controlling the framing, as the
// framing is decided by the serializer.
func (s *Serializer) renderHeaders(head *http.ResponseHead) {
	for key, value := range head.Headers.Pairs() {
		if strcomp.EqualFold(key, "Content-Length") ||
			strcomp.EqualFold(key, "Transfer-Encoding") ||
			strcomp.EqualFold(key, "Connection") {
			continue
		}

		s.buff = append(s.buff, key...)
		s.buff = append(s.buff, colonsp...)
		s.buff = append(s.buff, value...)
		s.crlf()
	}
}

func (s *Serializer) sp() {
	s.buff = append(s.buff, ' ')
}

func (s *Serializer) crlf() {
	s.buff = append(s.buff, crlf...)
}

func (s *Serializer) clear() {
	s.buff = s.buff[:0]
}
