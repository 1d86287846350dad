// Package relay forwards one parsed request to its origin server and streams
// the origin's response bytes back to the client unchanged.
//
// The origin is named by the request's Host header; port 80 is assumed when
// none is given. The response is not parsed: bytes are copied until the
// origin closes its side.
package relay
