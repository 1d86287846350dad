// Package tproxy provides listen configurations for intercepting HTTP traffic
// that a firewall redirects to the proxy, on Linux, FreeBSD, and OpenBSD.
//
// On Linux, the socket gets IP_TRANSPARENT and the original destination of a
// redirected connection is read with SO_ORIGINAL_DST. This suits
// iptables/nftables TPROXY or REDIRECT rules.
//
// On FreeBSD, the socket gets IP_BINDANY (IPV6_BINDANY for tcp6) and the
// original destination is the accepted connection's local address, which
// IPFW fwd and PF rdr-to preserve.
//
// On OpenBSD, the socket gets SO_BINDANY and the original destination is the
// local address, which PF rdr-to preserves.
//
// Intercepted requests are still routed by their Host header; the original
// destination is informational.
package tproxy
