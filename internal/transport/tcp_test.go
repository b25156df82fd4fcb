package transport

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosstalk-io/crosstalk/internal/authz"
	"github.com/crosstalk-io/crosstalk/internal/session"
)

type noopCoordinator struct{}

func (noopCoordinator) EndForSession(ctx context.Context, s *session.Session) {}

func startServer(t *testing.T) (*Server, *session.Registry, context.CancelFunc) {
	t.Helper()
	log := zap.NewNop()
	reg := session.NewRegistry()

	d := session.NewDispatcher(authz.NewEngine(authz.DefaultTable()), log)
	d.SetStart(func(ctx context.Context, s *session.Session, _ string) error {
		s.Send("hello")
		s.State = session.StateAuthenticating
		s.Transition(session.SubLoginName, session.ModeLine)
		return nil
	})
	d.SetFallback(session.StateAuthenticating, session.SubLoginName, session.ModeLine)
	d.Register(session.StateAuthenticating, session.SubLoginName,
		func(ctx context.Context, s *session.Session, input string) error {
			s.Send("echo " + input)
			return nil
		})

	srv := NewServer(Config{
		Addr:        "127.0.0.1:0",
		Log:         log,
		Dispatcher:  d,
		Registry:    reg,
		Coordinator: noopCoordinator{},
	})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, reg, cancel
}

func TestServerGreetsAndEchoes(t *testing.T) {
	srv, reg, _ := startServer(t)

	nc, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	r := bufio.NewReader(nc)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "hello", strings.TrimRight(line, "\r\n"))

	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 5*time.Millisecond)

	_, err = nc.Write([]byte("ping\r\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "echo ping", strings.TrimRight(line, "\r\n"))
}

func TestServerCleansUpOnClientClose(t *testing.T) {
	srv, reg, _ := startServer(t)

	nc, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)

	r := bufio.NewReader(nc)
	_, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, nc.Close())
	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServerShutdownClosesSessions(t *testing.T) {
	srv, reg, cancel := startServer(t)

	nc, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	r := bufio.NewReader(nc)
	_, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
