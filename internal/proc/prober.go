package proc

import (
	"fmt"
	"net"
	"time"
)

// probeTimeout bounds the TCP connect attempt of a health probe.
const probeTimeout = 1 * time.Second

// IsPortOpen reports whether something accepts TCP connections on
// 127.0.0.1:port. Any failure (refused, timeout, unreachable) counts as
// closed. The probing socket is always closed.
func IsPortOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
