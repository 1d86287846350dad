package request

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// AppendWire appends the wire form of r to dst: the request line, one
// "Name: Value" line per header in name order, a blank line, then the body.
func (r *Request) AppendWire(dst []byte) []byte {
	dst = append(dst, string(r.Method)...)
	dst = append(dst, ' ')
	dst = append(dst, r.URI...)
	if v := r.Version.String(); v != "" {
		dst = append(dst, ' ')
		dst = append(dst, v...)
	}
	dst = append(dst, "\r\n"...)

	for _, name := range r.Header.Names() {
		dst = append(dst, name...)
		dst = append(dst, ": "...)
		dst = append(dst, r.Header[name]...)
		dst = append(dst, "\r\n"...)
	}
	dst = append(dst, "\r\n"...)

	return append(dst, r.Body...)
}

// Bytes returns the wire form of r.
func (r *Request) Bytes() []byte {
	return r.AppendWire(make([]byte, 0, r.wireSizeHint()))
}

// WriteTo writes the wire form of r to w in a single Write call.
func (r *Request) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Bytes())
	return int64(n), err
}

func (r *Request) wireSizeHint() int {
	n := len(r.Method) + len(r.URI) + len(" HTTP/1.1\r\n\r\n") + len(r.Body)
	for k, v := range r.Header {
		n += len(k) + len(v) + 4
	}
	return n
}

var errBadContentLength = errors.New("invalid content-length")

// ContentLength returns the declared Content-Length, matching the header
// name case-insensitively. ok is false when no length was declared.
func (r *Request) ContentLength() (n int64, ok bool, err error) {
	v, ok := r.Header.Get("Content-Length")
	if !ok {
		for name, value := range r.Header {
			if strings.EqualFold(name, "Content-Length") {
				v, ok = value, true
				break
			}
		}
	}
	if !ok {
		return 0, false, nil
	}

	n, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, true, fmt.Errorf("%w: %q", errBadContentLength, v)
	}
	return n, true, nil
}
