package testutil

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Listen opens a loopback listener that is closed when the test ends or ctx
// is done.
func Listen(ctx context.Context, t *testing.T) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	t.Cleanup(func() {
		stop()
		_ = ln.Close()
	})
	return ln
}

// StartSingleAcceptServer runs handler on the first accepted connection.
// The returned wait closes the listener and waits for handler to return.
func StartSingleAcceptServer(ctx context.Context, t *testing.T, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	ln := Listen(ctx, t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	}()

	return ln, func() {
		_ = ln.Close()
		wg.Wait()
	}
}

// Origin is a fake origin server that answers one request per connection
// with a fixed response and then closes the connection.
type Origin struct {
	net.Listener
	// Requests receives the raw bytes of each request: the head, its
	// terminator, and the body through any declared Content-Length.
	Requests chan []byte
}

// StartOrigin starts an Origin that replies with response.
func StartOrigin(ctx context.Context, t *testing.T, response []byte) *Origin {
	t.Helper()

	o := &Origin{Listener: Listen(ctx, t), Requests: make(chan []byte, 16)}
	go func() {
		for {
			c, err := o.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				o.Requests <- readRequest(c)
				_, _ = c.Write(response)
			}()
		}
	}()
	return o
}

// readRequest reads one request head and, if it declares a Content-Length,
// that many body bytes. It returns early if the peer stops sending.
func readRequest(c net.Conn) []byte {
	var got []byte
	buf := make([]byte, 4096)
	want := -1
	for {
		if want < 0 {
			if i := bytes.Index(got, []byte("\r\n\r\n")); i >= 0 {
				want = i + 4 + contentLength(got[:i])
			}
		}
		if want >= 0 && len(got) >= want {
			return got
		}
		n, err := c.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			return got
		}
	}
}

func contentLength(head []byte) int {
	for _, line := range strings.Split(string(head), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(name, "Content-Length") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
