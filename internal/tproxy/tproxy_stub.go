//go:build !linux && !freebsd && !openbsd

package tproxy

import "net"

const IsSupported = false

// ListenConfig returns a plain ListenConfig; interception is unsupported here.
func ListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}

func OriginalDst(_ net.Conn) (*net.TCPAddr, bool) {
	return nil, false
}
