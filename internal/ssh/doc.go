// Package ssh sets up SSH client transports used to tunnel origin
// connections through an SSH server with "direct-tcpip" channels, the same
// mechanism as ssh -D.
//
// It covers the handshake, loading of authentication signers (key file or
// agent) and known_hosts verification with trust on first use.
package ssh
