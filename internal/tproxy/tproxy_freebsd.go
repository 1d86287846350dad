//go:build freebsd

package tproxy

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// IsSupported is true on TPROXY-supporting OSes.
const IsSupported = true

// ListenConfig returns a ListenConfig whose sockets set IP_BINDANY, which
// requires root or PRIV_NETINET_BINDANY. IPFW or PF rules must still redirect
// traffic to the listener.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if network == "tcp6" {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_BINDANY, 1)
			} else {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_BINDANY, 1)
			}
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}
}

// OriginalDst returns c's local address, which the firewall preserves.
func OriginalDst(c net.Conn) (*net.TCPAddr, bool) {
	return localTCPAddr(c)
}
