package status

// HTTPError is an error that knows which response code it must be answered with.
type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

var (
	ErrBadRequest              = NewError(BadRequest, "bad request")
	ErrTooLongRequestLine      = NewError(BadRequest, "request line is too long")
	ErrHeaderFieldsTooLarge    = NewError(HeaderFieldsTooLarge, "too large headers section")
	ErrHTTPVersionNotSupported = NewError(HTTPVersionNotSupported, "HTTP version not supported")
	ErrRequestTimeout          = NewError(RequestTimeout, "request timeout")
	ErrBodyTooLarge            = NewError(RequestEntityTooLarge, "too large body")
	ErrUnsupportedEncoding     = NewError(NotImplemented, "unsupported transfer encoding")
	ErrInternalServerError     = NewError(InternalServerError, "internal server error")
)
