//go:build openbsd

package tproxy

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// IsSupported is true on TPROXY-supporting OSes.
const IsSupported = true

// ListenConfig returns a ListenConfig whose sockets set SO_BINDANY, which
// requires root. PF needs rdr-to rules for inbound and divert-reply for
// return traffic.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: func(_, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			// Socket level, unlike FreeBSD's IP_BINDANY.
			ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BINDANY, 1)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}
}

// OriginalDst returns c's local address, which PF preserves.
func OriginalDst(c net.Conn) (*net.TCPAddr, bool) {
	return localTCPAddr(c)
}
