package request

import (
	"fmt"
	"sort"
)

// Method is one of the fixed set of request methods the proxy forwards.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodTrace   Method = "TRACE"
	MethodPatch   Method = "PATCH"
)

// ParseMethod matches tok exactly (case-sensitive) against the known methods.
func ParseMethod(tok string) (Method, error) {
	switch m := Method(tok); m {
	case MethodGet, MethodPost, MethodHead, MethodOptions,
		MethodPut, MethodDelete, MethodTrace, MethodPatch:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, tok)
	}
}

func (m Method) String() string {
	return string(m)
}

// Version is the protocol version named on the request line.
type Version int

const (
	// Version09 is implied by a request line without a version token.
	Version09 Version = iota
	Version10
	Version11
)

// ParseVersion maps a version token to a Version. An empty token means 0.9.
func ParseVersion(tok string) (Version, error) {
	switch tok {
	case "":
		return Version09, nil
	case "HTTP/1.0":
		return Version10, nil
	case "HTTP/1.1":
		return Version11, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, tok)
	}
}

// String returns the wire token, which is empty for 0.9.
func (v Version) String() string {
	switch v {
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	default:
		return ""
	}
}

// Header maps a header name to its value. Names are case-sensitive and
// unique; setting a name again replaces its value.
type Header map[string]string

// Get returns the value for name and whether it was present.
func (h Header) Get(name string) (string, bool) {
	v, ok := h[name]
	return v, ok
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	_, ok := h[name]
	return ok
}

// Set stores value under name. Empty names are ignored.
func (h Header) Set(name, value string) {
	if name == "" {
		return
	}
	h[name] = value
}

// SetDefault stores value under name only if name is absent. It reports
// whether the header was added.
func (h Header) SetDefault(name, value string) bool {
	if name == "" || h.Has(name) {
		return false
	}
	h[name] = value
	return true
}

// Del removes name.
func (h Header) Del(name string) {
	delete(h, name)
}

// Names returns the header names in sorted order.
func (h Header) Names() []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Request is a single parsed client request. It is owned by the connection
// that read it and is serialized exactly once toward the upstream.
type Request struct {
	Method  Method
	Version Version
	// URI is the request-target as received, origin-form or absolute-form.
	URI    string
	Header Header
	// Body is whatever followed the blank line in the captured bytes. It may
	// be shorter than a declared Content-Length.
	Body []byte
}
