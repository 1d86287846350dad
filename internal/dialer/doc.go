// Package dialer opens the outbound TCP connection from the proxy to an
// origin server.
//
// The default is a direct connection. The proxy can also chain through
// another hop: an HTTP(S) proxy via CONNECT, a SOCKS5 proxy, or an SSH server
// via "direct-tcpip" channels. Every implementation satisfies Dialer.
package dialer
