package encoding

import "errors"

// ErrCanceled is reported when an offloaded compression job never ran, e.g. because
// its pool was shut down. The error also matches offload.ErrCanceled.
var ErrCanceled = errors.New("encoding: compression canceled")

// Error is a failure of the underlying compressor. It is fatal to the stream.
type Error struct {
	Op       string
	Encoding Encoding
	Err      error
}

func (e *Error) Error() string {
	return "encoding: " + e.Op + " " + e.Encoding.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
