package dialer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/die-net/camoproxy/internal/testutil"
)

func TestSOCKS5ProxyDialerDialSuccess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(ctx, t)
	socksLn := testutil.StartSOCKS5Server(ctx, t)

	d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second, NegotiationTimeout: 2 * time.Second}, socksLn.Addr().String(), "", "")
	conn, err := d.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	testutil.AssertEcho(t, conn, conn, []byte("hello"))
}

func TestSOCKS5ProxyDialerUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	socksLn := testutil.StartSOCKS5Server(ctx, t)

	closed := testutil.Listen(ctx, t)
	target := closed.Addr().String()
	_ = closed.Close()

	d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, socksLn.Addr().String(), "", "")
	if _, err := d.DialContext(ctx, "tcp", target); err == nil {
		t.Fatal("expected error")
	}
}

func TestSOCKS5ProxyDialerContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// A server that accepts and then never answers the negotiation.
	stall, waitStall := testutil.StartSingleAcceptServer(ctx, t, func(c net.Conn) {
		<-ctx.Done()
	})

	dialCtx, dialCancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer dialCancel()

	d := NewSOCKS5ProxyDialer(Config{DialTimeout: 2 * time.Second}, stall.Addr().String(), "", "")
	start := time.Now()
	if _, err := d.DialContext(dialCtx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("dial did not honor context: %v", time.Since(start))
	}

	cancel()
	waitStall()
}
