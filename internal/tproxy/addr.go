package tproxy

import "net"

func localTCPAddr(c net.Conn) (*net.TCPAddr, bool) {
	if _, ok := c.(*net.TCPConn); !ok {
		return nil, false
	}
	addr, ok := c.LocalAddr().(*net.TCPAddr)
	return addr, ok
}
