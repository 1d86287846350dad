package testutil

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

// pipe copies in both directions until either side finishes.
func pipe(a, b io.ReadWriteCloser) {
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(a, b)
		_ = a.Close()
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(b, a)
		_ = b.Close()
		return err
	})
	_ = g.Wait()
}

// StartSOCKS5Server serves no-auth SOCKS5 CONNECT on a loopback listener.
func StartSOCKS5Server(ctx context.Context, t *testing.T) net.Listener {
	t.Helper()

	ln := Listen(ctx, t)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_ = serveSOCKS5(ctx, c)
			}()
		}
	}()
	return ln
}

func serveSOCKS5(ctx context.Context, c net.Conn) error {
	if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
		return err
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
		return err
	}
	req, err := txsocks5.NewRequestFrom(c)
	if err != nil {
		return err
	}

	zeroIP, zeroPort := []byte{0, 0, 0, 0}, []byte{0, 0}
	if req.Cmd != txsocks5.CmdConnect {
		_, _ = txsocks5.NewReply(txsocks5.RepCommandNotSupported, txsocks5.ATYPIPv4, zeroIP, zeroPort).WriteTo(c)
		return nil
	}

	var d net.Dialer
	dst, err := d.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		_, _ = txsocks5.NewReply(txsocks5.RepHostUnreachable, txsocks5.ATYPIPv4, zeroIP, zeroPort).WriteTo(c)
		return nil
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, txsocks5.ATYPIPv4, zeroIP, zeroPort).WriteTo(c); err != nil {
		_ = dst.Close()
		return err
	}
	pipe(c, dst)
	return nil
}

// StartSSHServer serves SSH password auth for user/pass and forwards
// "direct-tcpip" channels. It returns the listener and the host public key.
func StartSSHServer(ctx context.Context, t *testing.T, user, pass string) (net.Listener, ssh.PublicKey) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	hostKey, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, p []byte) (*ssh.Permissions, error) {
			if meta.User() != user || string(p) != pass {
				return nil, errors.New("invalid credentials")
			}
			return &ssh.Permissions{}, nil
		},
	}
	cfg.AddHostKey(hostKey)

	ln := Listen(ctx, t)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(ctx, c, cfg)
		}
	}()
	return ln, hostKey.PublicKey()
}

func serveSSH(ctx context.Context, c net.Conn, cfg *ssh.ServerConfig) {
	defer c.Close()

	sc, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "direct-tcpip" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}

		var p struct {
			Host       string
			Port       uint32
			OriginHost string
			OriginPort uint32
		}
		if err := ssh.Unmarshal(nc.ExtraData(), &p); err != nil {
			_ = nc.Reject(ssh.Prohibited, "bad direct-tcpip payload")
			continue
		}

		var d net.Dialer
		dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, fmt.Sprint(p.Port)))
		if err != nil {
			_ = nc.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			_ = dst.Close()
			continue
		}
		go ssh.DiscardRequests(chReqs)
		go pipe(ch, dst)
	}
}
