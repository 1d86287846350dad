// Package request holds the structured form of a proxied HTTP/1.x request.
//
// It parses a raw header block plus whatever body bytes were captured with
// it, and serializes the (possibly rewritten) request back to wire form for
// the upstream connection. Parsing is pure: no I/O and no interpretation of
// Content-Length or Transfer-Encoding.
package request
