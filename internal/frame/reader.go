// Package frame delimits one HTTP header block from a raw client byte stream.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	DefaultIdleTimeout    = 30 * time.Second
	DefaultMaxHeaderBytes = 1 << 20
	DefaultMaxBodyBytes   = 8 << 20
	DefaultBufferSize     = 64 << 10
)

var (
	ErrPeerClosed     = errors.New("peer closed before end of header block")
	ErrIdleTimeout    = errors.New("client idle timeout")
	ErrHeaderTooLarge = errors.New("header block too large")
	ErrBodyTooLarge   = errors.New("declared body too large")
	ErrShortBody      = errors.New("peer closed before end of body")
)

var terminator = []byte("\r\n\r\n")

// Frame is one header block and the bytes already read past it.
type Frame struct {
	// Head is everything before the CRLFCRLF terminator.
	Head []byte
	// Body is everything read after the terminator. It belongs to the body
	// of the same message and must not be read again from the source.
	Body []byte
}

// DeadlineReader is a reader that supports read deadlines, such as net.Conn.
type DeadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Reader reads frames from R. If R implements DeadlineReader, IdleTimeout is
// re-armed before every read.
type Reader struct {
	R              io.Reader
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	// MaxBodyBytes caps the length ReadBody will wait for.
	MaxBodyBytes   int64
	BufferSize     int
}

// ReadFrame reads until a complete header block is buffered.
//
// Bytes are consumed from R irreversibly; on error the connection should be
// abandoned.
func (r *Reader) ReadFrame() (*Frame, error) {
	maxHeader := r.MaxHeaderBytes
	if maxHeader <= 0 {
		maxHeader = DefaultMaxHeaderBytes
	}

	chunk := make([]byte, r.bufferSize())
	var data []byte
	for {
		n, err := r.read(chunk)
		if n > 0 {
			// The terminator may straddle the previous chunk boundary.
			from := max(len(data)-len(terminator)+1, 0)
			data = append(data, chunk[:n]...)
			if i := bytes.Index(data[from:], terminator); i >= 0 {
				end := from + i
				return &Frame{Head: data[:end:end], Body: data[end+len(terminator):]}, nil
			}
			if len(data) > maxHeader {
				return nil, fmt.Errorf("%w: %d bytes without terminator", ErrHeaderTooLarge, len(data))
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w after %d bytes", ErrPeerClosed, len(data))
			}
			return nil, err
		}
	}
}

// ReadBody reads from R until f.Body holds at least n bytes. It is used to
// complete a body whose declared length exceeds what arrived with the header
// block; bytes beyond n that arrive in the same read are kept. A length over
// MaxBodyBytes fails with ErrBodyTooLarge before anything is read.
func (r *Reader) ReadBody(f *Frame, n int64) error {
	if int64(len(f.Body)) >= n {
		return nil
	}
	maxBody := r.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if n > maxBody {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrBodyTooLarge, n, maxBody)
	}

	chunk := make([]byte, r.bufferSize())
	for int64(len(f.Body)) < n {
		m, err := r.read(chunk)
		f.Body = append(f.Body, chunk[:m]...)
		if err != nil {
			if errors.Is(err, io.EOF) && int64(len(f.Body)) >= n {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: have %d of %d bytes", ErrShortBody, len(f.Body), n)
			}
			return err
		}
	}
	return nil
}

func (r *Reader) read(p []byte) (int, error) {
	if dr, ok := r.R.(DeadlineReader); ok && r.IdleTimeout > 0 {
		_ = dr.SetReadDeadline(time.Now().Add(r.IdleTimeout))
	}

	n, err := r.R.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, fmt.Errorf("%w: %w", ErrIdleTimeout, err)
	}
	return n, err
}

func (r *Reader) bufferSize() int {
	if r.BufferSize > 0 {
		return r.BufferSize
	}
	return DefaultBufferSize
}
