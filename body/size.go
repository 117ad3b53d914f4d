package body

import "strconv"

type SizeKind uint8

const (
	// KindNone means the message has no body at all, e.g. responses to HEAD requests.
	KindNone SizeKind = iota
	// KindEmpty means a body of zero length.
	KindEmpty
	// KindSized means the exact length is known in advance.
	KindSized
	// KindStream means the length is unknown, so the transport must use chunked framing.
	KindStream
)

// Size is the body size hint.
type Size struct {
	kind SizeKind
	n    uint64
}

var (
	SizeNone   = Size{kind: KindNone}
	SizeEmpty  = Size{kind: KindEmpty}
	SizeStream = Size{kind: KindStream}
)

func Sized(n uint64) Size {
	return Size{kind: KindSized, n: n}
}

func (s Size) Kind() SizeKind {
	return s.kind
}

// Len returns the exact length for sized bodies and 0 otherwise.
func (s Size) Len() uint64 {
	return s.n
}

func (s Size) IsStream() bool {
	return s.kind == KindStream
}

func (s Size) String() string {
	switch s.kind {
	case KindNone:
		return "none"
	case KindEmpty:
		return "empty"
	case KindSized:
		return "sized(" + strconv.FormatUint(s.n, 10) + ")"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}
