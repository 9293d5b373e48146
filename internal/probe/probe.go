package probe

import (
	"net"
	"strconv"
	"time"
)

// DefaultTimeout is the connect timeout used when callers pass a non-positive value.
const DefaultTimeout = time.Second

// Func reports whether host:port accepts TCP connections within timeout.
type Func func(host string, port int, timeout time.Duration) bool

// IsOpen attempts a single TCP connection to host:port. Any dial error, whether refused,
// unreachable or timed out, is reported as false.
func IsOpen(host string, port int, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := net.DialTimeout("tcp", Address(host, port), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Address joins host and port, bracketing IPv6 literals.
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
