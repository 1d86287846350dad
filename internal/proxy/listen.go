package proxy

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// ListenTCP binds host:port. Accepted TCP connections get keepAlive applied.
// A bind failure is returned for the caller to treat as fatal.
func ListenTCP(ctx context.Context, host string, port int, keepAlive net.KeepAliveConfig) (net.Listener, error) {
	return Listen(ctx, net.ListenConfig{}, host, port, keepAlive)
}

// Listen is ListenTCP with socket options supplied by lc, such as a
// transparent listener from package tproxy.
func Listen(ctx context.Context, lc net.ListenConfig, host string, port int, keepAlive net.KeepAliveConfig) (net.Listener, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &keepAliveListener{Listener: ln, cfg: keepAlive}, nil
}

type keepAliveListener struct {
	net.Listener
	cfg net.KeepAliveConfig
}

func (l *keepAliveListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(l.cfg)
	}
	return c, nil
}
