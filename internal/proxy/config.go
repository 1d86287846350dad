package proxy

import (
	"net"
	"time"

	"github.com/die-net/camoproxy/internal/camouflage"
	"github.com/die-net/camoproxy/internal/dialer"
)

type Config struct {
	// ReadTimeout is the client idle timeout while the header block (and,
	// with ReadFullBody, the body) is being read.
	ReadTimeout    time.Duration
	MaxHeaderBytes int

	// ReadFullBody keeps reading until a declared Content-Length is
	// satisfied instead of forwarding only the bytes that arrived with the
	// header block.
	ReadFullBody bool
	// MaxBodyBytes caps the Content-Length ReadFullBody will wait for.
	MaxBodyBytes int64

	Camouflage camouflage.Options

	// StopOnAcceptError makes Serve return on the first accept error.
	StopOnAcceptError bool

	KeepAlive net.KeepAliveConfig

	Dialer dialer.Dialer

	// OriginalDst, if set, reports where an intercepted connection was
	// headed before redirection. It is only logged.
	OriginalDst func(net.Conn) (*net.TCPAddr, bool)
}
