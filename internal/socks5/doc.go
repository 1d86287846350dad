// Package socks5 implements the client half of a SOCKS5 CONNECT handshake on
// top of the protocol types in github.com/txthinking/socks5.
//
// It is used when the proxy chains its origin connections through a SOCKS5
// hop. Only CONNECT with no-auth or username/password is supported.
package socks5
