package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/die-net/camoproxy/internal/camouflage"
	"github.com/die-net/camoproxy/internal/frame"
	"github.com/die-net/camoproxy/internal/request"
	"github.com/die-net/camoproxy/internal/testutil"
)

const okResponse = "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"

func startProxy(ctx context.Context, t *testing.T, cfg Config) net.Listener {
	t.Helper()

	ln, err := ListenTCP(ctx, "127.0.0.1", 0, net.KeepAliveConfig{Enable: true})
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(ctx, cfg, nil)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	t.Cleanup(func() {
		_ = ln.Close()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
		_ = srv.Close()
	})
	return ln
}

func dialProxy(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	return c
}

func receive(t *testing.T, o *testutil.Origin) string {
	t.Helper()

	select {
	case got := <-o.Requests:
		return string(got)
	case <-time.After(5 * time.Second):
		t.Fatal("origin saw no request")
		return ""
	}
}

func TestServerEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	origin := testutil.StartOrigin(ctx, t, []byte(okResponse))
	host := origin.Addr().String()
	ln := startProxy(ctx, t, Config{})

	c := dialProxy(t, ln)
	req := "GET http://" + host + "/index.html HTTP/1.1\r\n" +
		"Host: " + host + "\r\n" +
		"Proxy-Connection: keep-alive\r\n" +
		"Accept-Encoding: gzip\r\n\r\n"
	if _, err := io.WriteString(c, req); err != nil {
		t.Fatal(err)
	}

	resp, err := io.ReadAll(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != okResponse {
		t.Fatalf("response=%q", resp)
	}

	want := "GET /index.html HTTP/1.1\r\nHost: " + host + "\r\n\r\n"
	if got := receive(t, origin); got != want {
		t.Fatalf("origin got %q want %q", got, want)
	}
}

func TestServerInjectCacheHeaders(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	origin := testutil.StartOrigin(ctx, t, []byte(okResponse))
	host := origin.Addr().String()
	ln := startProxy(ctx, t, Config{Camouflage: camouflage.Options{InjectCacheHeaders: true}})

	c := dialProxy(t, ln)
	if _, err := io.WriteString(c, "GET / HTTP/1.0\r\nHost: "+host+"\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadAll(c); err != nil {
		t.Fatal(err)
	}

	want := "GET / HTTP/1.0\r\nCache-Control: max-age=0\r\nConnection: keep-alive\r\nHost: " + host + "\r\n\r\n"
	if got := receive(t, origin); got != want {
		t.Fatalf("origin got %q want %q", got, want)
	}
}

func TestServerClosesWithoutResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  string
	}{
		{name: "missing host", req: "GET / HTTP/1.1\r\nAccept: */*\r\n\r\n"},
		{name: "invalid method", req: "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com\r\n\r\n"},
		{name: "unknown version", req: "GET / HTTP/2.0\r\nHost: example.com\r\n\r\n"},
		{name: "malformed header", req: "GET / HTTP/1.1\r\nHost:example.com\r\n\r\n"},
		{name: "closed before terminator", req: "GET / HTTP/1.1\r\nHost: example.com\r\n"},
	}

	ctx := t.Context()
	ln := startProxy(ctx, t, Config{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := dialProxy(t, ln)
			if _, err := io.WriteString(c, tt.req); err != nil {
				t.Fatal(err)
			}
			if tc, ok := c.(*net.TCPConn); ok {
				_ = tc.CloseWrite()
			}
			resp, err := io.ReadAll(c)
			if err != nil && !errors.Is(err, net.ErrClosed) && !strings.Contains(err.Error(), "reset") {
				t.Fatal(err)
			}
			if len(resp) != 0 {
				t.Fatalf("got %q, want no bytes", resp)
			}
		})
	}
}

func TestServerIsolatesFailures(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	origin := testutil.StartOrigin(ctx, t, []byte(okResponse))
	host := origin.Addr().String()
	ln := startProxy(ctx, t, Config{})

	bad := dialProxy(t, ln)
	good := dialProxy(t, ln)

	if _, err := io.WriteString(bad, "BREW /pot HTTP/1.1\r\nHost: "+host+"\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(good, "GET /ok HTTP/1.1\r\nHost: "+host+"\r\n\r\n"); err != nil {
		t.Fatal(err)
	}

	resp, err := io.ReadAll(good)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != okResponse {
		t.Fatalf("response=%q", resp)
	}
	if got := receive(t, origin); !strings.HasPrefix(got, "GET /ok HTTP/1.1\r\n") {
		t.Fatalf("origin got %q", got)
	}
}

func TestServerIdleTimeout(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	ln := startProxy(ctx, t, Config{ReadTimeout: 50 * time.Millisecond})

	c := dialProxy(t, ln)
	if _, err := io.WriteString(c, "GET / HTTP/1.1\r\n"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	resp, _ := io.ReadAll(c)
	if len(resp) != 0 {
		t.Fatalf("got %q, want no bytes", resp)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("connection closed after %v", elapsed)
	}
}

func TestServerReadFullBody(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	origin := testutil.StartOrigin(ctx, t, []byte(okResponse))
	host := origin.Addr().String()
	ln := startProxy(ctx, t, Config{ReadFullBody: true})

	c := dialProxy(t, ln)
	head := "POST /form HTTP/1.1\r\nContent-Length: 10\r\nHost: " + host + "\r\n\r\n"
	if _, err := io.WriteString(c, head+"hello"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := io.WriteString(c, "world"); err != nil {
		t.Fatal(err)
	}

	if _, err := io.ReadAll(c); err != nil {
		t.Fatal(err)
	}
	if got, want := receive(t, origin), head+"helloworld"; got != want {
		t.Fatalf("origin got %q want %q", got, want)
	}
}

func TestServerHandleReadFullBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		later    string
		wantBody string
		wantErr  error
	}{
		{name: "body completed", input: "POST / HTTP/1.1\r\nContent-Length: 4\r\nHost: h\r\n\r\nab", later: "cd", wantBody: "abcd"},
		{name: "extra bytes trimmed", input: "POST / HTTP/1.1\r\nContent-Length: 2\r\nHost: h\r\n\r\nabcdef", wantBody: "ab"},
		{name: "no length", input: "GET / HTTP/1.1\r\nHost: h\r\n\r\nxy", wantBody: "xy"},
		{name: "short body", input: "POST / HTTP/1.1\r\nContent-Length: 99\r\nHost: h\r\n\r\nab", wantErr: frame.ErrShortBody},
		{name: "declared length over limit", input: "POST / HTTP/1.1\r\nContent-Length: 99999999999\r\nHost: h\r\n\r\nab", wantErr: frame.ErrBodyTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// The first read returns exactly input; later arrives after.
			fr := &frame.Reader{R: strings.NewReader(tt.input + tt.later), BufferSize: len(tt.input), MaxBodyBytes: 1 << 10}
			f, err := fr.ReadFrame()
			if err != nil {
				t.Fatal(err)
			}
			req, err := request.Parse(f.Head, f.Body)
			if err != nil {
				t.Fatal(err)
			}

			s := NewServer(t.Context(), Config{ReadFullBody: true}, nil)
			err = s.completeBody(fr, f, req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err=%v want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if string(req.Body) != tt.wantBody {
				t.Fatalf("body=%q want %q", req.Body, tt.wantBody)
			}
		})
	}
}

func TestServeStopsOnClose(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	ln, err := ListenTCP(ctx, "127.0.0.1", 0, net.KeepAliveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(ctx, Config{}, nil)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	_ = ln.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	if err := srv.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestServerCloseWhileAccepting(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	ln, err := ListenTCP(ctx, "127.0.0.1", 0, net.KeepAliveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	srv := NewServer(ctx, Config{}, nil)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	stop := make(chan struct{})
	var dialers sync.WaitGroup
	for range 4 {
		dialers.Add(1)
		go func() {
			defer dialers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				c, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
				if err != nil {
					continue
				}
				_ = c.Close()
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	if err := srv.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve kept accepting after Close")
	}
	close(stop)
	dialers.Wait()
}

func TestListenTCPBindFailure(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	ln, err := ListenTCP(ctx, "127.0.0.1", 0, net.KeepAliveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	if _, err := ListenTCP(ctx, "127.0.0.1", port, net.KeepAliveConfig{}); err == nil {
		t.Fatal("expected bind failure on a port in use")
	}
}

func TestServerOriginalDstHook(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	origin := testutil.StartOrigin(ctx, t, []byte(okResponse))
	host := origin.Addr().String()

	called := make(chan struct{}, 1)
	ln := startProxy(ctx, t, Config{OriginalDst: func(c net.Conn) (*net.TCPAddr, bool) {
		called <- struct{}{}
		addr, ok := c.LocalAddr().(*net.TCPAddr)
		return addr, ok
	}})

	c := dialProxy(t, ln)
	if _, err := io.WriteString(c, "GET / HTTP/1.1\r\nHost: "+host+"\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	resp, err := io.ReadAll(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != okResponse {
		t.Fatalf("response=%q", resp)
	}
	select {
	case <-called:
	default:
		t.Fatal("OriginalDst not consulted")
	}
}
