//go:build linux

package tproxy

import (
	"encoding/binary"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// IsSupported is true on TPROXY-supporting OSes.
const IsSupported = true

// ListenConfig returns a ListenConfig whose sockets set IP_TRANSPARENT so
// they can accept redirected connections. Appropriate iptables/nft rules are
// still needed.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: func(_, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}
}

// OriginalDst returns the pre-redirect IPv4 destination of c.
func OriginalDst(c net.Conn) (*net.TCPAddr, bool) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil, false
	}
	rc, err := tc.SyscallConn()
	if err != nil {
		return nil, false
	}

	var addr *net.TCPAddr
	_ = rc.Control(func(fd uintptr) {
		// The sockaddr_in comes back in the 16 bytes of an IPv6Mreq.
		mreq, err := unix.GetsockoptIPv6Mreq(int(fd), unix.IPPROTO_IP, unix.SO_ORIGINAL_DST)
		if err != nil {
			return
		}
		raw := mreq.Multiaddr
		if binary.NativeEndian.Uint16(raw[0:2]) != unix.AF_INET {
			return
		}
		addr = &net.TCPAddr{
			IP:   net.IPv4(raw[4], raw[5], raw[6], raw[7]),
			Port: int(binary.BigEndian.Uint16(raw[2:4])),
		}
	})
	return addr, addr != nil
}
