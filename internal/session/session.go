// Package session implements the per-connection state machine and its
// dispatcher.
//
// Each connection is served by exactly one worker goroutine owning its
// Session. Everything that mutates a session happens on that worker; other
// goroutines interact only by posting events into the inbox. The exception
// is Principal, which is written once at authentication and read-only after.
package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/crosstalk-io/crosstalk/internal/authz"
	"github.com/crosstalk-io/crosstalk/internal/model"
)

// Conn is the transport seam: one remote terminal connection.
type Conn interface {
	// Send writes raw bytes to the remote end.
	Send(text string) error
	// Close tears the connection down; the reader observes it and posts
	// the disconnect.
	Close() error
	// RemoteAddr identifies the peer for logging and rate limiting.
	RemoteAddr() string
}

// maxLineLen bounds the line-mode input buffer.
const maxLineLen = 512

var nextSessionID atomic.Uint64

// Session is one live connection's state machine instance.
type Session struct {
	ID uint64

	// Principal is nil until authenticated, immutable afterwards.
	Principal *model.Principal

	State    State
	Sub      SubState
	Mode     InputMode
	Workflow Workflow

	// Channel is the sub-channel the session is currently "in".
	Channel model.ChannelKey

	// Overrides are session-scoped temporary capability marks.
	Overrides authz.OverrideSet

	// PendingOffer is the pairing id of an unanswered page offer, uuid.Nil
	// when none is pending.
	PendingOffer uuid.UUID

	conn      Conn
	log       *zap.Logger
	inbox     chan Event
	done      chan struct{}
	closeOnce sync.Once

	denials authz.OverrideSet // parsed once at authentication
	lineBuf []byte
	snap    *snapshot
}

// snapshot preserves the pre-pairing position for restoration when the
// pairing ends.
type snapshot struct {
	state State
	sub   SubState
	mode  InputMode
}

// New constructs a session for a fresh connection.
func New(conn Conn, log *zap.Logger) *Session {
	id := nextSessionID.Add(1)
	return &Session{
		ID:    id,
		State: StateConnecting,
		Sub:   SubNone,
		Mode:  ModeHotkey,
		conn:  conn,
		log:   log.With(zap.Uint64("session", id)),
		inbox: make(chan Event, 64),
		done:  make(chan struct{}),
	}
}

// Post delivers an event to the session's inbox. It returns false once the
// session has shut down; callers treat that as "peer gone".
func (s *Session) Post(ev Event) bool {
	select {
	case s.inbox <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Disconnect posts the transport-closed notification.
func (s *Session) Disconnect() { s.Post(disconnectEvent{}) }

// Done is closed when the session's worker has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send writes one line to the remote terminal. Transport errors are logged,
// not propagated: the reader will observe the broken connection and post
// the disconnect.
func (s *Session) Send(line string) {
	if err := s.conn.Send(line + "\r\n"); err != nil {
		s.log.Debug("send failed", zap.Error(err))
	}
}

// Prompt writes text without a line terminator.
func (s *Session) Prompt(text string) {
	if err := s.conn.Send(text); err != nil {
		s.log.Debug("prompt send failed", zap.Error(err))
	}
}

// RemoteAddr returns the transport peer address.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr() }

// Username returns the authenticated name or "" before authentication.
func (s *Session) Username() string {
	if s.Principal == nil {
		return ""
	}
	return s.Principal.Username
}

// Authenticate marks the session authenticated. The principal's stored
// denial marks are parsed once here; the hot authorization path never
// re-parses strings.
func (s *Session) Authenticate(p *model.Principal) {
	s.Principal = p
	s.denials = authz.ParseMarks(p.DenialMarks)
	s.State = StateAuthenticated
}

// Grants assembles the authorization inputs for this session.
func (s *Session) Grants() authz.Grants {
	g := authz.Grants{Level: model.LevelUnset, Session: s.Overrides}
	if s.Principal != nil {
		g.Level = s.Principal.Level
		g.Denials = s.denials
	}
	return g
}

// SetMode switches the input mode and drops any half-assembled line.
func (s *Session) SetMode(m InputMode) {
	s.Mode = m
	s.lineBuf = s.lineBuf[:0]
}

// Transition moves to the given sub-state and input mode in one step.
func (s *Session) Transition(sub SubState, mode InputMode) {
	s.Sub = sub
	s.SetMode(mode)
}

// EnterChat snapshots the current position and switches into the chat
// sub-state. Called from the session's own worker on PairingStartedEvent.
func (s *Session) EnterChat(w ChatWorkflow) {
	s.snap = &snapshot{state: s.State, sub: s.Sub, mode: s.Mode}
	s.Workflow = w
	s.Transition(SubChat, ModeLine)
}

// LeaveChat restores the pre-pairing position, falling back to the menu
// when the snapshot is missing.
func (s *Session) LeaveChat() {
	s.Workflow = nil
	if s.snap != nil {
		s.State = s.snap.state
		s.Transition(s.snap.sub, s.snap.mode)
		s.snap = nil
		return
	}
	s.Transition(SubMenu, ModeHotkey)
}

// InChat reports whether the session currently sits in the chat sub-state.
func (s *Session) InChat() bool { return s.Sub == SubChat }

// feed assembles raw bytes into input events per the current mode and
// dispatches them in arrival order.
func (s *Session) feed(ctx context.Context, d *Dispatcher, data []byte) {
	if s.Mode == ModeHotkey {
		for _, b := range data {
			if b == '\r' || b == '\n' {
				continue
			}
			d.Dispatch(ctx, s, string(b))
		}
		return
	}
	s.lineBuf = append(s.lineBuf, data...)
	for {
		i := bytes.IndexByte(s.lineBuf, '\n')
		if i < 0 {
			if len(s.lineBuf) > maxLineLen {
				s.lineBuf = s.lineBuf[:maxLineLen]
			}
			return
		}
		line := string(bytes.TrimRight(s.lineBuf[:i], "\r"))
		s.lineBuf = s.lineBuf[i+1:]
		d.Dispatch(ctx, s, line)
		if s.Mode == ModeHotkey {
			// A handler switched modes; remaining buffered bytes are
			// reinterpreted as keystrokes.
			rest := s.lineBuf
			s.lineBuf = nil
			s.feed(ctx, d, rest)
			return
		}
	}
}

// Coordinator ends any live pairing the session participates in. It is
// invoked synchronously on the disconnect path, before session resources
// are released, so the remaining peer is never left stuck in chat.
type Coordinator interface {
	EndForSession(ctx context.Context, s *Session)
}

// Run is the session worker loop. It processes inbox events strictly in
// arrival order and owns every mutation of the session.
func (s *Session) Run(ctx context.Context, d *Dispatcher, coord Coordinator, onExit func(*Session)) {
	defer func() {
		coord.EndForSession(ctx, s)
		if onExit != nil {
			onExit(s)
		}
		s.closeOnce.Do(func() { close(s.done) })
		_ = s.conn.Close()
	}()

	d.Start(ctx, s)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.inbox:
			switch e := ev.(type) {
			case InputEvent:
				s.feed(ctx, d, e.Data)
			case disconnectEvent:
				return
			case NoticeEvent:
				s.Send(e.Text)
			case PageOfferEvent:
				s.PendingOffer = e.PairingID
				s.Send(fmt.Sprintf("%s is paging you. Press Y to chat, N to decline.", e.From))
			case PairingStartedEvent:
				s.EnterChat(ChatWorkflow{PairingID: e.PairingID})
				s.Send(fmt.Sprintf("You are now chatting with %s. Type /x to end.", e.With))
			case PairingEndedEvent:
				if s.InChat() {
					s.LeaveChat()
				}
				s.PendingOffer = uuid.Nil
				s.Send(e.Reason)
			case ChatMessageEvent:
				s.Send(fmt.Sprintf("%s: %s", e.From, e.Text))
			}
		}
	}
}
