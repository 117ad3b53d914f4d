package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsLocalhost(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		for _, addr := range []string{
			"localhost:443", "LocalHost:443", "127.0.0.1:8443", "[::1]:443", ":443", "0.0.0.0:443", "localhost",
		} {
			require.True(t, IsLocalhost(addr), addr)
		}
	})

	t.Run("remote", func(t *testing.T) {
		for _, addr := range []string{"example.com:443", "10.0.0.1:443", "[2001:db8::1]:443", "example.com"} {
			require.False(t, IsLocalhost(addr), addr)
		}
	})
}
