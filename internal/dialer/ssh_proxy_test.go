package dialer

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	internalssh "github.com/die-net/camoproxy/internal/ssh"
	"github.com/die-net/camoproxy/internal/testutil"
)

func TestSSHProxyDialer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(ctx, t)
	sshLn, hostKey := testutil.StartSSHServer(ctx, t, "user", "pass")

	d := NewSSHProxyDialerWithConfig(Config{DialTimeout: 2 * time.Second}, sshLn.Addr().String(), internalssh.ClientConfig{
		Username:         "user",
		Password:         "pass",
		HostKeyCallback:  ssh.FixedHostKey(hostKey),
		HandshakeTimeout: 2 * time.Second,
	})
	defer d.Close()

	// Two channels share one transport.
	for _, msg := range []string{"hello", "hello again"} {
		conn, err := d.DialContext(ctx, "tcp", echoLn.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEcho(t, conn, conn, []byte(msg))
		_ = conn.Close()
	}
}

func TestSSHProxyDialerBadPassword(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sshLn, hostKey := testutil.StartSSHServer(ctx, t, "user", "pass")

	d := NewSSHProxyDialerWithConfig(Config{DialTimeout: 2 * time.Second}, sshLn.Addr().String(), internalssh.ClientConfig{
		Username:        "user",
		Password:        "wrong",
		HostKeyCallback: ssh.FixedHostKey(hostKey),
	})
	defer d.Close()

	if _, err := d.DialContext(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected auth error")
	}
}

func TestSSHProxyDialerRejectedChannel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sshLn, hostKey := testutil.StartSSHServer(ctx, t, "user", "pass")

	closed := testutil.Listen(ctx, t)
	target := closed.Addr().String()
	_ = closed.Close()

	d := NewSSHProxyDialerWithConfig(Config{}, sshLn.Addr().String(), internalssh.ClientConfig{
		Username:        "user",
		Password:        "pass",
		HostKeyCallback: ssh.FixedHostKey(hostKey),
	})
	defer d.Close()

	_, err := d.DialContext(ctx, "tcp", target)
	var openErr *ssh.OpenChannelError
	if err == nil || !errors.As(err, &openErr) {
		t.Fatalf("err=%v want OpenChannelError", err)
	}
	if _, err := d.DialContext(ctx, "udp", target); err == nil {
		t.Fatal("expected error for udp")
	}
}
