package encoding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/indigo-web/strand/body"
	"github.com/indigo-web/strand/http"
	"github.com/indigo-web/strand/http/status"
	"github.com/indigo-web/strand/offload"
)

// DefaultThreshold is the chunk length starting from which compression is offloaded.
// Most of the response chunks are smaller, and compressing them in place is cheaper than
// scheduling them onto another goroutine.
const DefaultThreshold = 1024

// Observer is notified about the encoders' activity. All the methods must be safe for
// concurrent use.
type Observer interface {
	// Compressed is called for every chunk fed into a compressor.
	Compressed(enc Encoding, size int, offloaded bool)
	// Emitted is called for every produced chunk of compressed data.
	Emitted(enc Encoding, size int)
	// Failed is called once a stream ends with an error.
	Failed(enc Encoding)
}

type nopObserver struct{}

func (nopObserver) Compressed(Encoding, int, bool) {}
func (nopObserver) Emitted(Encoding, int)          {}
func (nopObserver) Failed(Encoding)                {}

// Options is shared by all the encoders of a server.
type Options struct {
	// Threshold is the inline compression threshold. Defaults to DefaultThreshold.
	Threshold int
	Levels    Levels
	// Pool executes compression of big chunks. The package-wide pool is used if nil.
	Pool     *offload.Pool
	Observer Observer
	Logger   *slog.Logger
}

var defaultPool = sync.OnceValue(func() *offload.Pool {
	return offload.NewPool(offload.Options{})
})

func (o Options) normalize() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}

	if o.Levels == (Levels{}) {
		o.Levels = DefaultLevels()
	}

	if o.Pool == nil {
		o.Pool = defaultPool()
	}

	if o.Observer == nil {
		o.Observer = nopObserver{}
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	return o
}

type sourceKind uint8

const (
	sourceBytes sourceKind = iota
	sourceStream
	sourceBoxed
)

// Encoder is a body stream compressing its inner stream. An encoder without compressor
// passes the inner stream through untouched.
//
// The Encoder isn't safe for concurrent use, just as any other Stream.
type Encoder[B body.Stream] struct {
	kind   sourceKind
	buff   []byte
	stream B
	boxed  body.Stream

	encoding Encoding
	encoder  *contentEncoder
	job      *offload.Handle[*contentEncoder]
	eof      bool
	err      error
	opts     Options
}

// Response decides whether the body must be compressed and wraps it correspondingly.
//
// Compression is skipped if the Content-Encoding header is already set, the code is 101
// Switching Protocols or 204 No Content, or enc is either Identity or Auto. None and empty
// bodies are returned as is, as well as in-memory buffers which mustn't be compressed.
// Otherwise, the Content-Encoding header is set and chunked framing is forced, as the
// length of the compressed body is unknown in advance.
func Response[B body.Stream](
	enc Encoding, head *http.ResponseHead, rb body.ResponseBody[B], opts Options,
) body.ResponseBody[*Encoder[B]] {
	canEncode := !(head.Headers.Has("Content-Encoding") ||
		head.Code == status.SwitchingProtocols ||
		head.Code == status.NoContent ||
		enc == Identity ||
		enc == Auto)

	e := &Encoder[B]{opts: opts.normalize()}

	if stream, ok := rb.Typed(); ok {
		e.kind, e.stream = sourceStream, stream
	} else {
		other, _ := rb.Other()

		switch other.Kind() {
		case body.KindNoBody, body.KindEmptyBody:
			return body.Other[*Encoder[B]](other)
		case body.KindBytes:
			if !canEncode {
				return body.Other[*Encoder[B]](other)
			}

			e.kind, e.buff = sourceBytes, other.Buffer()
		default:
			e.kind, e.boxed = sourceBoxed, other.Unwrap()
		}
	}

	if canEncode {
		// modify the head only if there's an actual compressor
		if ce := newContentEncoder(enc, e.opts.Levels); ce != nil {
			head.Headers.Set("Content-Encoding", enc.Token())
			head.ForceChunked()
			e.encoding, e.encoder = enc, ce
		}
	}

	return body.Typed(e)
}

// Encoding returns the encoding the stream is compressed with, or Identity if it isn't.
func (e *Encoder[B]) Encoding() Encoding {
	return e.encoding
}

func (e *Encoder[B]) Size() body.Size {
	if e.encoding != Identity {
		return body.SizeStream
	}

	switch e.kind {
	case sourceBytes:
		if len(e.buff) == 0 {
			return body.SizeEmpty
		}

		return body.Sized(uint64(len(e.buff)))
	case sourceStream:
		return e.stream.Size()
	default:
		return e.boxed.Size()
	}
}

// Fetch returns the next chunk of the (compressed) body. If ctx is done while waiting
// for an offloaded job, ctx.Err() is returned and the job is kept, so the next call
// picks up where this one left.
func (e *Encoder[B]) Fetch(ctx context.Context) ([]byte, error) {
	for {
		if e.eof {
			return nil, io.EOF
		}

		if e.err != nil {
			return nil, e.err
		}

		if e.job != nil {
			encoder, err := e.job.Wait(ctx)
			if err != nil && resolved(e.job) {
				// the job might have resolved right after the wait was interrupted
				encoder, err = e.job.Wait(context.Background())
			}

			if err != nil {
				if !resolved(e.job) {
					return nil, err
				}

				e.job = nil
				if errors.Is(err, offload.ErrCanceled) {
					err = &Error{Op: "offload", Encoding: e.encoding, Err: fmt.Errorf("%w: %w", ErrCanceled, err)}
				}

				return nil, e.fail(err)
			}

			e.job = nil
			e.encoder = encoder
			if chunk := encoder.take(); len(chunk) > 0 {
				return e.emit(chunk), nil
			}

			continue
		}

		chunk, err := e.next(ctx)
		switch err {
		case nil:
		case io.EOF:
			return e.finish()
		default:
			if ctx.Err() == nil {
				e.err = err
			}

			return nil, err
		}

		if e.encoder == nil {
			return chunk, nil
		}

		if len(chunk) < e.opts.Threshold {
			e.opts.Observer.Compressed(e.encoding, len(chunk), false)
			if err = e.encoder.write(chunk); err != nil {
				return nil, e.fail(err)
			}

			if compressed := e.encoder.take(); len(compressed) > 0 {
				return e.emit(compressed), nil
			}

			// compressors buffer input, so small chunks may produce no output yet
			continue
		}

		e.opts.Observer.Compressed(e.encoding, len(chunk), true)
		encoder := e.encoder
		e.encoder = nil
		e.job = offload.Submit(e.opts.Pool, func() (*contentEncoder, error) {
			if err := encoder.write(chunk); err != nil {
				return nil, err
			}

			return encoder, nil
		})
	}
}

func (e *Encoder[B]) next(ctx context.Context) ([]byte, error) {
	switch e.kind {
	case sourceBytes:
		if len(e.buff) == 0 {
			return nil, io.EOF
		}

		buff := e.buff
		e.buff = nil

		return buff, nil
	case sourceStream:
		return e.stream.Fetch(ctx)
	default:
		return e.boxed.Fetch(ctx)
	}
}

func (e *Encoder[B]) finish() ([]byte, error) {
	if e.encoder == nil {
		e.eof = true
		return nil, io.EOF
	}

	encoder := e.encoder
	e.encoder = nil

	tail, err := encoder.finish()
	if err != nil {
		return nil, e.fail(err)
	}

	e.eof = true
	if len(tail) == 0 {
		return nil, io.EOF
	}

	return e.emit(tail), nil
}

func (e *Encoder[B]) emit(chunk []byte) []byte {
	e.opts.Observer.Emitted(e.encoding, len(chunk))
	return chunk
}

func (e *Encoder[B]) fail(err error) error {
	e.err = err
	e.opts.Observer.Failed(e.encoding)
	e.opts.Logger.Debug("compression failed",
		slog.String("encoding", e.encoding.String()),
		slog.Any("error", err),
	)

	return err
}

func resolved[T any](h *offload.Handle[T]) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}
