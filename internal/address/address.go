package address

import (
	"net"
	"strings"
)

// IsLocalhost reports whether the listening address is reachable only locally or
// isn't bound to a specific host at all, e.g. ":8080".
func IsLocalhost(addr string) bool {
	host := stripPort(addr)
	if len(host) == 0 || strings.EqualFold(host, "localhost") {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return host
}
