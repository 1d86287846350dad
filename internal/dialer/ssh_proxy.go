package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	internalssh "github.com/die-net/camoproxy/internal/ssh"
)

// SSHProxyDialer reaches destinations through an SSH server. Every
// DialContext opens a "direct-tcpip" channel over one shared SSH transport,
// which is established lazily and re-established once when a dial fails at
// the transport level.
type SSHProxyDialer struct {
	addr   string
	cfg    internalssh.ClientConfig
	direct Dialer

	mu     sync.Mutex
	client *ssh.Client
	sf     singleflight.Group
}

// NewSSHProxyDialer authenticates with password, with keys from
// cfg.SSHKeyPath, or with both.
func NewSSHProxyDialer(cfg Config, addr, username, password string) (*SSHProxyDialer, error) {
	if username == "" {
		return nil, errors.New("ssh dialer: missing username")
	}

	signers, err := internalssh.LoadSigners(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}
	if password == "" && len(signers) == 0 {
		return nil, errors.New("ssh dialer: missing password or key")
	}

	hostKeyCallback, err := internalssh.NewHostKeyCallback(cfg.SSHKnownHostsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	return &SSHProxyDialer{
		addr: addr,
		cfg: internalssh.ClientConfig{
			Username:         username,
			Password:         password,
			Signers:          signers,
			HostKeyCallback:  hostKeyCallback,
			HandshakeTimeout: cfg.NegotiationTimeout,
		},
		direct: NewDirectDialer(cfg),
	}, nil
}

// NewSSHProxyDialerWithConfig uses a prepared client config, such as one with
// a custom host key callback.
func NewSSHProxyDialerWithConfig(cfg Config, addr string, sshCfg internalssh.ClientConfig) *SSHProxyDialer {
	return &SSHProxyDialer{addr: addr, cfg: sshCfg, direct: NewDirectDialer(cfg)}
}

// DialContext opens a channel to address. Canceling ctx closes only that
// channel, never the shared transport.
func (d *SSHProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("ssh proxy dial %s %s: unsupported network", network, address)
	}

	client, err := d.getClient(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := client.DialContext(ctx, "tcp", address)
	if err != nil {
		// A rejected channel means the transport is fine but the
		// destination is not.
		var openErr *ssh.OpenChannelError
		if errors.As(err, &openErr) || ctx.Err() != nil {
			return nil, fmt.Errorf("ssh proxy dial %s: %w", address, err)
		}

		d.dropClient(client)
		if client, err = d.getClient(ctx); err != nil {
			return nil, err
		}
		if conn, err = client.DialContext(ctx, "tcp", address); err != nil {
			return nil, fmt.Errorf("ssh proxy dial %s: %w", address, err)
		}
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	return &channelConn{Conn: conn, stop: stop}, nil
}

// Close tears down the shared transport.
func (d *SSHProxyDialer) Close() error {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// getClient returns the shared transport, dialing it if needed. Concurrent
// callers share one connection attempt; a caller whose ctx ends stops
// waiting but the attempt continues for the others.
func (d *SSHProxyDialer) getClient(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client != nil {
		return client, nil
	}

	ch := d.sf.DoChan("connect", func() (any, error) {
		d.mu.Lock()
		c := d.client
		d.mu.Unlock()
		if c != nil {
			return c, nil
		}

		c, err := d.dialTransport(context.Background())
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.client = c
		d.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ssh.Client), nil
	}
}

func (d *SSHProxyDialer) dialTransport(ctx context.Context) (*ssh.Client, error) {
	conn, err := d.direct.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("ssh transport: %w", err)
	}
	return internalssh.NewClient(conn, d.cfg, d.addr)
}

// dropClient discards client if it is still the shared transport.
func (d *SSHProxyDialer) dropClient(client *ssh.Client) {
	d.mu.Lock()
	if d.client == client {
		d.client = nil
	}
	d.mu.Unlock()
	_ = client.Close()
}

type channelConn struct {
	net.Conn
	stop func() bool
}

func (c *channelConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
