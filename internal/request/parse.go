package request

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidMethod        = errors.New("invalid http method")
	ErrUnknownVersion       = errors.New("unknown http version")
	ErrMalformedHeader      = errors.New("malformed header line")
	ErrMalformedRequestLine = errors.New("malformed request line")
)

// Parse builds a Request from a header block (request line and header lines
// separated by CRLF, with or without the terminating blank line) and the
// bytes that followed the block. body is retained, not copied.
func Parse(head, body []byte) (*Request, error) {
	lines := strings.Split(string(head), "\r\n")

	method, uri, version, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}

	h := make(Header, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ": ")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		h[name] = value
	}

	return &Request{
		Method:  method,
		Version: version,
		URI:     uri,
		Header:  h,
		Body:    body,
	}, nil
}

// parseRequestLine splits on the first two spaces only. A missing version
// token means HTTP/0.9.
func parseRequestLine(line string) (Method, string, Version, error) {
	toks := strings.SplitN(line, " ", 3)

	method, err := ParseMethod(toks[0])
	if err != nil {
		return "", "", 0, err
	}
	if len(toks) < 2 || toks[1] == "" {
		return "", "", 0, fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}

	var version Version
	if len(toks) == 3 {
		// An empty token here means a trailing space, not an absent version.
		if toks[2] == "" {
			return "", "", 0, fmt.Errorf("%w: %q", ErrUnknownVersion, toks[2])
		}
		if version, err = ParseVersion(toks[2]); err != nil {
			return "", "", 0, err
		}
	}

	return method, toks[1], version, nil
}
