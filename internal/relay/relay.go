package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/camoproxy/internal/dialer"
	"github.com/die-net/camoproxy/internal/request"
)

// DefaultPort is used when the Host header carries no port.
const DefaultPort = "80"

var (
	ErrMissingHost   = errors.New("no Host header in request")
	ErrConnectFailed = errors.New("upstream connect failed")
	ErrRelay         = errors.New("relay failed")
)

type Config struct {
	Dialer  dialer.Dialer
	Buffers *BufferPool
	Logger  *zap.Logger
}

// Relay sends requests upstream and copies responses back.
type Relay struct {
	dialer  dialer.Dialer
	buffers *BufferPool
	log     *zap.Logger
}

func New(cfg Config) *Relay {
	r := &Relay{dialer: cfg.Dialer, buffers: cfg.Buffers, log: cfg.Logger}
	if r.dialer == nil {
		r.dialer = dialer.NewDirectDialer(dialer.Config{})
	}
	if r.buffers == nil {
		r.buffers = NewBufferPool(DefaultBufferSize)
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// UpstreamAddr returns host unchanged when it already has a port and
// host:80 otherwise.
func UpstreamAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return net.JoinHostPort(host, DefaultPort)
}

// Relay connects to the origin named by req's Host header, writes the whole
// request, then copies the origin's bytes to client until the origin closes.
// Once the origin is connected no timeout applies; canceling ctx closes both
// connections.
//
// client is half-closed for writing on success; the caller still owns it.
func (r *Relay) Relay(ctx context.Context, req *request.Request, client net.Conn) error {
	host, _ := req.Header.Get("Host")
	host = strings.TrimSpace(host)
	if host == "" {
		return ErrMissingHost
	}
	addr := UpstreamAddr(host)

	up, err := r.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectFailed, addr, err)
	}
	defer up.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = up.Close()
		_ = client.Close()
	})
	defer stop()

	_ = client.SetDeadline(time.Time{})

	if _, err := req.WriteTo(up); err != nil {
		return fmt.Errorf("%w: send request to %s: %w", ErrRelay, addr, err)
	}

	buf := r.buffers.Get()
	defer r.buffers.Put(buf)

	n, err := copyChunks(client, up, *buf)
	if err != nil {
		return fmt.Errorf("%w: %s after %d bytes: %w", ErrRelay, addr, n, err)
	}

	if cw, ok := client.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}

	r.log.Debug("relayed response",
		zap.String("method", req.Method.String()),
		zap.String("upstream", addr),
		zap.String("uri", req.URI),
		zap.Int64("bytes", n))
	return nil
}

// copyChunks writes every chunk read from src to dst as soon as it arrives,
// stopping cleanly at EOF.
func copyChunks(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, fmt.Errorf("write to client: %w", werr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return total, nil
		}
		if rerr != nil {
			return total, fmt.Errorf("read from upstream: %w", rerr)
		}
	}
}
