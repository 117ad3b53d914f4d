package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	require.Equal(t, "OK", Text(OK))
	require.Equal(t, "Switching Protocols", Text(SwitchingProtocols))
	require.Empty(t, Text(Code(599)))
}

func TestHasBody(t *testing.T) {
	require.True(t, HasBody(OK))
	require.False(t, HasBody(NoContent))
	require.False(t, HasBody(NotModified))
	require.False(t, HasBody(SwitchingProtocols))
}

func TestHTTPError(t *testing.T) {
	var httpErr HTTPError
	require.True(t, errors.As(ErrBadRequest, &httpErr))
	require.Equal(t, BadRequest, httpErr.Code)
	require.Equal(t, "bad request", ErrBadRequest.Error())
}
