package handlers

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosstalk-io/crosstalk/internal/authz"
	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/ledger"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/crosstalk-io/crosstalk/internal/pairing"
	"github.com/crosstalk-io/crosstalk/internal/session"
)

type fakeConn struct {
	mu     sync.Mutex
	writes []string
	closed bool
}

func (c *fakeConn) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, text)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "203.0.113.9:4242" }

func (c *fakeConn) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.writes, "")
}

type fakeAuth struct {
	principal *model.Principal
	token     string
	loginErr  error
	resumeErr error
}

func (a *fakeAuth) Register(ctx context.Context, username, password string) (*model.Principal, error) {
	if a.loginErr != nil {
		return nil, a.loginErr
	}
	return &model.Principal{ID: uuid.Must(uuid.NewV4()), Username: username, Level: 20}, nil
}

func (a *fakeAuth) LoginWithIP(ctx context.Context, username, password, ip string) (*model.Principal, model.ResumeToken, error) {
	if a.loginErr != nil {
		return nil, model.ResumeToken{}, a.loginErr
	}
	return a.principal, model.ResumeToken{Token: a.token}, nil
}

func (a *fakeAuth) Resume(ctx context.Context, token string) (*model.Principal, error) {
	if a.resumeErr != nil {
		return nil, a.resumeErr
	}
	return a.principal, nil
}

type fakeBoard struct {
	posted []*model.Message
	queue  []*model.Message
	fresh  bool
	unseen []model.ChannelKey
	killed []int64
}

func (b *fakeBoard) Post(ctx context.Context, m *model.Message) (int64, error) {
	b.posted = append(b.posted, m)
	return int64(len(b.posted)), nil
}

func (b *fakeBoard) ReadNext(ctx context.Context, principal uuid.UUID, username string, ch model.ChannelKey) (*model.Message, error) {
	if len(b.queue) == 0 {
		return nil, errs.ErrNotFound
	}
	m := b.queue[0]
	b.queue = b.queue[1:]
	return m, nil
}

func (b *fakeBoard) Scan(ctx context.Context, principal uuid.UUID, ch model.ChannelKey) (bool, error) {
	return b.fresh, nil
}

func (b *fakeBoard) ChannelsWithUnseen(ctx context.Context, principal uuid.UUID) ([]model.ChannelKey, error) {
	return b.unseen, nil
}

func (b *fakeBoard) Kill(ctx context.Context, ch model.ChannelKey, itemID int64) error {
	b.killed = append(b.killed, itemID)
	return nil
}

type fakeCursorRepo struct {
	mu      sync.Mutex
	cursors map[cursorID]model.ReadCursor
	ranges  map[model.ChannelKey]model.ChannelRange
}

type cursorID struct {
	principal uuid.UUID
	ch        model.ChannelKey
}

func newFakeCursorRepo() *fakeCursorRepo {
	return &fakeCursorRepo{
		cursors: make(map[cursorID]model.ReadCursor),
		ranges:  make(map[model.ChannelKey]model.ChannelRange),
	}
}

func (r *fakeCursorRepo) LoadCursor(ctx context.Context, principal uuid.UUID, ch model.ChannelKey) (model.ReadCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[cursorID{principal, ch}]
	if !ok {
		return model.ReadCursor{}, errs.ErrNotFound
	}
	return c, nil
}

func (r *fakeCursorRepo) SaveCursor(ctx context.Context, principal uuid.UUID, ch model.ChannelKey, c model.ReadCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := cursorID{principal, ch}
	prev := r.cursors[k]
	if c.LastRead < prev.LastRead {
		c.LastRead = prev.LastRead
	}
	if c.LastScanned < prev.LastScanned {
		c.LastScanned = prev.LastScanned
	}
	r.cursors[k] = c
	return nil
}

func (r *fakeCursorRepo) LoadRange(ctx context.Context, ch model.ChannelKey) (model.ChannelRange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rng, ok := r.ranges[ch]
	if !ok {
		return model.ChannelRange{}, errs.ErrNotFound
	}
	return rng, nil
}

func (r *fakeCursorRepo) SaveRange(ctx context.Context, ch model.ChannelKey, rng model.ChannelRange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranges[ch] = rng
	return nil
}

func (r *fakeCursorRepo) ListChannels(ctx context.Context) ([]model.ChannelKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ChannelKey, 0, len(r.ranges))
	for ch := range r.ranges {
		out = append(out, ch)
	}
	return out, nil
}

type fixture struct {
	h     *Handlers
	d     *session.Dispatcher
	conn  *fakeConn
	s     *session.Session
	auth  *fakeAuth
	board *fakeBoard
	reg   *session.Registry
	pairs *pairing.Manager
}

var testHome = model.ChannelKey{Channel: "general", Sub: "main"}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	reg := session.NewRegistry()
	auth := &fakeAuth{
		principal: &model.Principal{ID: uuid.Must(uuid.NewV4()), Username: "alice", Level: 20},
		token:     "tok123",
	}
	board := &fakeBoard{}
	lgr := ledger.NewService(newFakeCursorRepo(), log)
	pairs := pairing.NewManager(reg, 50*time.Millisecond, 64, log)

	h := New(Deps{
		Log:      log,
		Auth:     auth,
		Board:    board,
		Ledger:   lgr,
		Engine:   authz.NewEngine(authz.DefaultTable()),
		Registry: reg,
		Pairings: pairs,
		Home:     testHome,
	})
	d, err := h.BuildDispatcher()
	require.NoError(t, err)

	conn := &fakeConn{}
	s := session.New(conn, log)
	reg.Put(s)
	return &fixture{h: h, d: d, conn: conn, s: s, auth: auth, board: board, reg: reg, pairs: pairs}
}

// authenticate fast-forwards the session to the menu without running the
// login dialogue.
func (f *fixture) authenticate(t *testing.T, username string, level int) {
	t.Helper()
	f.s.Authenticate(&model.Principal{ID: uuid.Must(uuid.NewV4()), Username: username, Level: level})
	require.Nil(t, f.reg.Bind(f.s))
	f.s.Channel = testHome
	f.s.Transition(session.SubMenu, session.ModeHotkey)
}

func (f *fixture) dispatch(inputs ...string) {
	for _, in := range inputs {
		f.d.Dispatch(context.Background(), f.s, in)
	}
}

func TestLoginFlow(t *testing.T) {
	f := newFixture(t)
	f.d.Start(context.Background(), f.s)
	require.Equal(t, session.StateAuthenticating, f.s.State)

	f.dispatch("alice", "secret")

	require.Equal(t, session.StateAuthenticated, f.s.State)
	require.Equal(t, session.SubMenu, f.s.Sub)
	require.Equal(t, "alice", f.s.Username())
	require.Contains(t, f.conn.output(), "Welcome, alice.")
	require.Contains(t, f.conn.output(), "Resume token: !tok123")

	got, ok := f.reg.FindByPrincipal("alice")
	require.True(t, ok)
	require.Same(t, f.s, got)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.auth.loginErr = errs.ErrUnauthorized
	f.d.Start(context.Background(), f.s)

	f.dispatch("alice", "wrong")

	require.Equal(t, session.StateAuthenticating, f.s.State)
	require.Equal(t, session.SubLoginName, f.s.Sub)
	require.Contains(t, f.conn.output(), "Wrong name or password.")
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t)
	f.auth.loginErr = errs.ErrRateLimited
	f.d.Start(context.Background(), f.s)

	f.dispatch("alice", "secret")

	require.Equal(t, session.SubLoginName, f.s.Sub)
	require.Contains(t, f.conn.output(), "Too many attempts.")
}

func TestRegisterFlow(t *testing.T) {
	f := newFixture(t)
	f.d.Start(context.Background(), f.s)

	f.dispatch("NEW", "bob", "hunter22")

	require.Equal(t, session.StateAuthenticated, f.s.State)
	require.Equal(t, "bob", f.s.Username())
	require.Contains(t, f.conn.output(), "Account created.")
	require.Contains(t, f.conn.output(), "Welcome, bob.")
}

func TestRegisterNameTaken(t *testing.T) {
	f := newFixture(t)
	f.auth.loginErr = errs.ErrAlreadyExists
	f.d.Start(context.Background(), f.s)

	f.dispatch("NEW", "alice", "hunter22")

	require.Equal(t, session.StateAuthenticating, f.s.State)
	require.Equal(t, session.SubLoginName, f.s.Sub)
	require.Contains(t, f.conn.output(), "That name is taken.")
}

func TestResumeToken(t *testing.T) {
	f := newFixture(t)
	f.d.Start(context.Background(), f.s)

	f.dispatch("!sometoken")

	require.Equal(t, session.StateAuthenticated, f.s.State)
	require.Equal(t, "alice", f.s.Username())
	// No fresh token is printed on a resumed login.
	require.NotContains(t, f.conn.output(), "Resume token:")
}

func TestResumeRejected(t *testing.T) {
	f := newFixture(t)
	f.auth.resumeErr = errs.ErrUnauthorized
	f.d.Start(context.Background(), f.s)

	f.dispatch("!garbage")

	require.Equal(t, session.StateAuthenticating, f.s.State)
	require.Contains(t, f.conn.output(), "Resume token rejected.")
}

func TestSecondLoginEvictsFirst(t *testing.T) {
	f := newFixture(t)
	f.authenticate(t, "alice", 20)

	conn2 := &fakeConn{}
	s2 := session.New(conn2, zap.NewNop())
	f.reg.Put(s2)
	f.d.Start(context.Background(), s2)
	f.d.Dispatch(context.Background(), s2, "alice")
	f.d.Dispatch(context.Background(), s2, "secret")

	got, ok := f.reg.FindByPrincipal("alice")
	require.True(t, ok)
	require.Same(t, s2, got)
}
