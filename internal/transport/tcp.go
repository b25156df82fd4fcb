// Package transport owns the TCP listener. It turns raw socket reads into
// session inbox events and runs one worker per connection; it knows nothing
// about the state machine beyond the session API.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crosstalk-io/crosstalk/internal/session"
)

// writeTimeout bounds one write to a slow terminal.
const writeTimeout = 10 * time.Second

// readBufSize is the per-connection read chunk.
const readBufSize = 1024

// tcpConn adapts a net.Conn to the session transport seam.
type tcpConn struct {
	mu sync.Mutex
	c  net.Conn
}

func (t *tcpConn) Send(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := t.c.Write([]byte(text))
	return err
}

func (t *tcpConn) Close() error { return t.c.Close() }

func (t *tcpConn) RemoteAddr() string { return t.c.RemoteAddr().String() }

// Config wires the server to the rest of the core.
type Config struct {
	Addr        string
	Log         *zap.Logger
	Dispatcher  *session.Dispatcher
	Registry    *session.Registry
	Coordinator session.Coordinator
	// OnExit runs after a session's worker stops and it has left the
	// registry (cursor flush, last-seen bookkeeping).
	OnExit func(*session.Session)
}

// Server accepts terminal connections.
type Server struct {
	log    *zap.Logger
	addr   string
	disp   *session.Dispatcher
	reg    *session.Registry
	coord  session.Coordinator
	onExit func(*session.Session)

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer constructs an unstarted server.
func NewServer(cfg Config) *Server {
	return &Server{
		log:    cfg.Log,
		addr:   cfg.Addr,
		disp:   cfg.Dispatcher,
		reg:    cfg.Registry,
		coord:  cfg.Coordinator,
		onExit: cfg.OnExit,
	}
}

// Listen binds the TCP address.
func (srv *Server) Listen() error {
	ln, err := net.Listen("tcp", srv.addr)
	if err != nil {
		return err
	}
	srv.ln = ln
	srv.log.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address (the real port when Addr was ":0").
func (srv *Server) Addr() net.Addr {
	if srv.ln == nil {
		return nil
	}
	return srv.ln.Addr()
}

// Serve accepts connections until the context is canceled, then waits for
// every session worker to finish.
func (srv *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = srv.ln.Close()
	}()

	for {
		nc, err := srv.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			srv.log.Warn("accept failed", zap.Error(err))
			continue
		}
		srv.wg.Add(1)
		go srv.serve(ctx, nc)
	}

	srv.wg.Wait()
	return nil
}

// Run is Listen followed by Serve.
func (srv *Server) Run(ctx context.Context) error {
	if err := srv.Listen(); err != nil {
		return err
	}
	return srv.Serve(ctx)
}

func (srv *Server) serve(ctx context.Context, nc net.Conn) {
	defer srv.wg.Done()

	conn := &tcpConn{c: nc}
	s := session.New(conn, srv.log)
	srv.reg.Put(s)
	srv.log.Info("connected",
		zap.Uint64("session", s.ID),
		zap.String("addr", conn.RemoteAddr()),
	)

	go srv.read(nc, s)

	s.Run(ctx, srv.disp, srv.coord, func(ended *session.Session) {
		srv.reg.Remove(ended)
		if srv.onExit != nil {
			srv.onExit(ended)
		}
	})
	srv.log.Info("disconnected",
		zap.Uint64("session", s.ID),
		zap.String("principal", s.Username()),
	)
}

// read pumps socket bytes into the session inbox. The worker never reads
// the socket itself, so a blocked handler cannot stall the disconnect
// notification.
func (srv *Server) read(nc net.Conn, s *session.Session) {
	buf := make([]byte, readBufSize)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.Post(session.InputEvent{Data: data}) {
				return
			}
		}
		if err != nil {
			s.Disconnect()
			return
		}
	}
}
