package body

import (
	"context"
	"io"
)

// DefaultReadBufferSize is used by FromReader when no buffer size is given.
const DefaultReadBufferSize = 4096

type readerStream struct {
	r    io.Reader
	size Size
	buff []byte
	err  error
}

// FromReader turns an io.Reader into a Stream, reading at most bufferSize bytes
// per chunk. The size hint is reported as is.
func FromReader(r io.Reader, size Size, bufferSize int) Stream {
	if bufferSize <= 0 {
		bufferSize = DefaultReadBufferSize
	}

	return &readerStream{
		r:    r,
		size: size,
		buff: make([]byte, bufferSize),
	}
}

func (r *readerStream) Size() Size {
	return r.size
}

func (r *readerStream) Fetch(ctx context.Context) ([]byte, error) {
	for r.err == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var n int
		n, r.err = r.r.Read(r.buff)
		if n > 0 {
			return r.buff[:n], nil
		}
	}

	return nil, r.err
}

type chunks struct {
	pending [][]byte
	size    Size
}

// Chunks serves the given pieces one by one, reporting an unknown length.
func Chunks(pieces ...[]byte) Stream {
	return &chunks{pending: pieces, size: SizeStream}
}

func (c *chunks) Size() Size {
	return c.size
}

func (c *chunks) Fetch(context.Context) ([]byte, error) {
	if len(c.pending) == 0 {
		return nil, io.EOF
	}

	chunk := c.pending[0]
	c.pending = c.pending[1:]

	return chunk, nil
}

type sticky struct {
	Stream
	err error
}

// Sticky guarantees the terminal result of the stream is reported on every further
// call instead of relying on the stream itself. Context errors are not terminal.
func Sticky(s Stream) Stream {
	if st, ok := s.(*sticky); ok {
		return st
	}

	return &sticky{Stream: s}
}

func (s *sticky) Fetch(ctx context.Context) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}

	chunk, err := s.Stream.Fetch(ctx)
	if err != nil && ctx.Err() == nil {
		s.err = err
	}

	return chunk, err
}

// Reader adapts a Stream to the io.Reader interface.
type Reader struct {
	ctx    context.Context
	stream Stream
	err    error
	data   []byte
}

func NewReader(ctx context.Context, s Stream) *Reader {
	return &Reader{ctx: ctx, stream: s}
}

func (r *Reader) Read(b []byte) (n int, err error) {
	for len(r.data) == 0 {
		if r.err != nil {
			return 0, r.err
		}

		r.data, r.err = r.stream.Fetch(r.ctx)
	}

	n = copy(b, r.data)
	r.data = r.data[n:]
	if len(r.data) == 0 {
		err = r.err
	}

	return n, err
}
