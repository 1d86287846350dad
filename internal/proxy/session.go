package proxy

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
)

// session owns one accepted client connection from accept until close.
// Nothing about it is shared with other connections.
type session struct {
	id          uint64
	conn        net.Conn
	idleTimeout time.Duration
	accepted    time.Time
	log         *zap.Logger
}

func newSession(id uint64, conn net.Conn, idleTimeout time.Duration, log *zap.Logger) *session {
	return &session{
		id:          id,
		conn:        conn,
		idleTimeout: idleTimeout,
		accepted:    time.Now(),
		log:         log.With(zap.Uint64("conn", id), zap.Stringer("client", conn.RemoteAddr())),
	}
}

// closeOnDone closes the connection when ctx ends, unblocking any read or
// write in progress. The returned func detaches the hook.
func (s *session) closeOnDone(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() { _ = s.conn.Close() })
}

func (s *session) close() {
	_ = s.conn.Close()
}

// stageError tags a pipeline failure with the step that produced it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return e.stage + ": " + e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}
