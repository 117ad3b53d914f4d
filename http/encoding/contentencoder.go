package encoding

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Levels holds compression levels per encoding.
type Levels struct {
	Gzip    int
	Deflate int
	Brotli  int
}

// DefaultLevels favours speed, as responses are compressed on the fly.
func DefaultLevels() Levels {
	return Levels{
		Gzip:    gzip.BestSpeed,
		Deflate: zlib.BestSpeed,
		Brotli:  3,
	}
}

// Clamp replaces out-of-range levels with defaults.
func (l Levels) Clamp() Levels {
	def := DefaultLevels()
	if l.Gzip < gzip.HuffmanOnly || l.Gzip > gzip.BestCompression {
		l.Gzip = def.Gzip
	}

	if l.Deflate < zlib.HuffmanOnly || l.Deflate > zlib.BestCompression {
		l.Deflate = def.Deflate
	}

	if l.Brotli < brotli.BestSpeed || l.Brotli > brotli.BestCompression {
		l.Brotli = def.Brotli
	}

	return l
}

// sink collects the compressor output.
type sink interface {
	io.Writer
	take() []byte
}

// accumulator receives compressed output until drained.
type accumulator struct {
	buff []byte
}

func (a *accumulator) Write(p []byte) (int, error) {
	a.buff = append(a.buff, p...)
	return len(p), nil
}

// take hands the accumulated bytes over to the caller. The caller owns them afterward.
func (a *accumulator) take() []byte {
	buff := a.buff
	a.buff = nil

	return buff
}

// contentEncoder is a closed union over the supported compressors. Exactly one of the
// compressor fields is set, matching kind. Once finished, the encoder must not be used
// anymore.
type contentEncoder struct {
	kind    Encoding
	deflate *zlib.Writer
	gzip    *gzip.Writer
	br      *brotli.Writer
	out     sink
}

// newContentEncoder returns nil for encodings without a compressor.
func newContentEncoder(enc Encoding, levels Levels) *contentEncoder {
	return newSinkEncoder(enc, levels, new(accumulator))
}

func newSinkEncoder(enc Encoding, levels Levels, out sink) *contentEncoder {
	levels = levels.Clamp()
	c := &contentEncoder{kind: enc, out: out}

	switch enc {
	case Deflate:
		// levels are clamped, so the constructors never fail
		c.deflate, _ = zlib.NewWriterLevel(c.out, levels.Deflate)
	case Gzip:
		c.gzip, _ = gzip.NewWriterLevel(c.out, levels.Gzip)
	case Brotli:
		c.br = brotli.NewWriterLevel(c.out, levels.Brotli)
	default:
		return nil
	}

	return c
}

func (c *contentEncoder) write(p []byte) (err error) {
	switch c.kind {
	case Deflate:
		_, err = c.deflate.Write(p)
	case Gzip:
		_, err = c.gzip.Write(p)
	case Brotli:
		_, err = c.br.Write(p)
	}

	if err != nil {
		return &Error{Op: "write", Encoding: c.kind, Err: err}
	}

	return nil
}

func (c *contentEncoder) take() []byte {
	return c.out.take()
}

// finish flushes the remaining compressor state and returns the tail of the output.
func (c *contentEncoder) finish() ([]byte, error) {
	var err error

	switch c.kind {
	case Deflate:
		err = c.deflate.Close()
	case Gzip:
		err = c.gzip.Close()
	case Brotli:
		err = c.br.Close()
	}

	if err != nil {
		return nil, &Error{Op: "finish", Encoding: c.kind, Err: err}
	}

	return c.take(), nil
}
