package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds DNS lookup plus TCP connect.
	DialTimeout time.Duration
	// NegotiationTimeout bounds the handshake with a chained proxy hop.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// SSHKeyPath is a private key file, "agent", or empty for password only.
	SSHKeyPath string
	// SSHKnownHostsPath enables trust-on-first-use host key checking.
	// Empty disables host key checking.
	SSHKnownHostsPath string
}
