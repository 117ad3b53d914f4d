package body

import (
	"context"
	"io"
)

// Stream lazily produces a finite sequence of byte chunks. The sequence is ended by
// io.EOF; any other error terminates it as well. Streams can't be restarted: once
// ended or failed, every further Fetch returns the same terminal result.
//
// A returned chunk stays valid until the next call to Fetch.
type Stream interface {
	Size() Size
	Fetch(ctx context.Context) ([]byte, error)
}

type Kind uint8

const (
	KindNoBody Kind = iota
	KindEmptyBody
	KindBytes
	KindMessage
)

// Body is a closed union over the most common body sources: nothing, an empty body,
// an in-memory buffer or an arbitrary Stream.
type Body struct {
	kind   Kind
	buff   []byte
	stream Stream
}

func None() Body {
	return Body{kind: KindNoBody}
}

func Empty() Body {
	return Body{kind: KindEmptyBody}
}

// Bytes serves the buffer as a single chunk.
func Bytes(b []byte) Body {
	return Body{kind: KindBytes, buff: b}
}

func String(s string) Body {
	return Bytes([]byte(s))
}

// Message wraps an arbitrary stream.
func Message(s Stream) Body {
	if s == nil {
		return None()
	}

	return Body{kind: KindMessage, stream: s}
}

func (b Body) Kind() Kind {
	return b.kind
}

// Buffer returns the in-memory buffer. Valid only for KindBytes bodies.
func (b Body) Buffer() []byte {
	return b.buff
}

// Unwrap returns the wrapped stream. Valid only for KindMessage bodies.
func (b Body) Unwrap() Stream {
	return b.stream
}

func (b *Body) Size() Size {
	switch b.kind {
	case KindNoBody:
		return SizeNone
	case KindEmptyBody:
		return SizeEmpty
	case KindBytes:
		if len(b.buff) == 0 {
			return SizeEmpty
		}

		return Sized(uint64(len(b.buff)))
	default:
		return b.stream.Size()
	}
}

func (b *Body) Fetch(ctx context.Context) ([]byte, error) {
	switch b.kind {
	case KindBytes:
		if len(b.buff) == 0 {
			return nil, io.EOF
		}

		buff := b.buff
		b.buff = nil

		return buff, nil
	case KindMessage:
		return b.stream.Fetch(ctx)
	default:
		return nil, io.EOF
	}
}

// ResponseBody is either a statically typed stream or a general-purpose Body.
type ResponseBody[B Stream] struct {
	typed bool
	body  B
	other Body
}

func Typed[B Stream](b B) ResponseBody[B] {
	return ResponseBody[B]{typed: true, body: b}
}

func Other[B Stream](b Body) ResponseBody[B] {
	return ResponseBody[B]{other: b}
}

// Typed returns the typed stream, if this is the one.
func (r ResponseBody[B]) Typed() (b B, ok bool) {
	return r.body, r.typed
}

// Other returns the general-purpose body, if this is the one.
func (r ResponseBody[B]) Other() (b Body, ok bool) {
	return r.other, !r.typed
}

func (r *ResponseBody[B]) Size() Size {
	if r.typed {
		return r.body.Size()
	}

	return r.other.Size()
}

func (r *ResponseBody[B]) Fetch(ctx context.Context) ([]byte, error) {
	if r.typed {
		return r.body.Fetch(ctx)
	}

	return r.other.Fetch(ctx)
}

// ReadAll drains the stream into a single buffer.
func ReadAll(ctx context.Context, s Stream) ([]byte, error) {
	var buff []byte
	if size := s.Size(); size.Kind() == KindSized {
		buff = make([]byte, 0, size.Len())
	}

	for {
		chunk, err := s.Fetch(ctx)
		buff = append(buff, chunk...)
		switch err {
		case nil:
		case io.EOF:
			return buff, nil
		default:
			return buff, err
		}
	}
}
