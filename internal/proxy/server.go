package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/camoproxy/internal/camouflage"
	"github.com/die-net/camoproxy/internal/frame"
	"github.com/die-net/camoproxy/internal/relay"
	"github.com/die-net/camoproxy/internal/request"
)

const maxAcceptDelay = time.Second

// Server is the connection acceptor of the forward proxy.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	relay  *relay.Relay
	log    *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	nextID atomic.Uint64
}

// NewServer returns a Server whose connections live no longer than ctx.
func NewServer(ctx context.Context, cfg Config, log *zap.Logger) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = frame.DefaultIdleTimeout
	}

	s := &Server{cfg: cfg, log: log}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.relay = relay.New(relay.Config{
		Dialer:  cfg.Dialer,
		Buffers: relay.NewBufferPool(relay.DefaultBufferSize),
		Logger:  log,
	})
	return s
}

// Serve accepts connections on ln and handles each in its own goroutine.
// It returns nil once ln is closed. Other accept errors are logged and
// retried with backoff, unless Config.StopOnAcceptError is set.
func (s *Server) Serve(ln net.Listener) error {
	var delay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if s.cfg.StopOnAcceptError {
				return fmt.Errorf("accept: %w", err)
			}

			delay = min(max(2*delay, 5*time.Millisecond), maxAcceptDelay)
			s.log.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-time.After(delay):
			case <-s.ctx.Done():
				return nil
			}
			continue
		}
		delay = 0

		if !s.track() {
			_ = c.Close()
			return nil
		}
		go s.serveConn(c)
	}
}

// track registers a connection goroutine unless Close has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// Close cancels in-flight connections and waits for their goroutines.
// Connections accepted afterwards are closed unserved and Serve returns. The
// caller closes the listener passed to Serve.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Server) serveConn(c net.Conn) {
	defer s.wg.Done()

	sess := newSession(s.nextID.Add(1), c, s.cfg.ReadTimeout, s.log)
	defer sess.close()
	if s.cfg.OriginalDst != nil {
		if dst, ok := s.cfg.OriginalDst(c); ok {
			sess.log = sess.log.With(zap.Stringer("orig_dst", dst))
		}
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := sess.closeOnDone(ctx)
	defer stop()

	if err := s.handle(ctx, sess); err != nil {
		var se *stageError
		stage := "unknown"
		if errors.As(err, &se) {
			stage = se.stage
		}
		sess.log.Debug("connection failed",
			zap.String("stage", stage),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(sess.accepted)))
		return
	}
	sess.log.Debug("connection done", zap.Duration("elapsed", time.Since(sess.accepted)))
}

// handle runs read, parse, camouflage and relay strictly in that order.
func (s *Server) handle(ctx context.Context, sess *session) error {
	fr := &frame.Reader{
		R:              sess.conn,
		IdleTimeout:    sess.idleTimeout,
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
		MaxBodyBytes:   s.cfg.MaxBodyBytes,
	}

	f, err := fr.ReadFrame()
	if err != nil {
		return &stageError{stage: "read", err: err}
	}

	req, err := request.Parse(f.Head, f.Body)
	if err != nil {
		return &stageError{stage: "parse", err: err}
	}

	if s.cfg.ReadFullBody {
		if err := s.completeBody(fr, f, req); err != nil {
			return err
		}
	}

	camouflage.Transform(req, s.cfg.Camouflage)

	sess.log.Debug("request",
		zap.String("method", req.Method.String()),
		zap.String("uri", req.URI),
		zap.Int("body_bytes", len(req.Body)))

	if err := s.relay.Relay(ctx, req, sess.conn); err != nil {
		return &stageError{stage: "relay", err: err}
	}
	return nil
}

// completeBody reads the rest of a body whose Content-Length exceeds what
// arrived with the header block, and trims anything past it.
func (s *Server) completeBody(fr *frame.Reader, f *frame.Frame, req *request.Request) error {
	n, ok, err := req.ContentLength()
	if err != nil {
		return &stageError{stage: "parse", err: err}
	}
	if !ok {
		return nil
	}
	if err := fr.ReadBody(f, n); err != nil {
		return &stageError{stage: "read body", err: err}
	}
	req.Body = f.Body[:n]
	return nil
}
