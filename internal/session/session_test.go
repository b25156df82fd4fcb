package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosstalk-io/crosstalk/internal/authz"
	"github.com/crosstalk-io/crosstalk/internal/model"
)

// recorder registers a capture-everything handler for one sub-state.
func recorder(d *Dispatcher, st State, sub SubState, got *[]string) {
	d.Register(st, sub, func(ctx context.Context, s *Session, input string) error {
		*got = append(*got, input)
		return nil
	})
}

func TestFeedHotkeyPerByte(t *testing.T) {
	d := newTestDispatcher()
	var got []string
	recorder(d, StateAuthenticated, SubMenu, &got)

	s, _ := newTestSession()
	s.feed(context.Background(), d, []byte("AB\r\nC"))

	require.Equal(t, []string{"A", "B", "C"}, got)
}

func TestFeedLineMode(t *testing.T) {
	d := newTestDispatcher()
	var got []string
	recorder(d, StateAuthenticated, SubComposeBody, &got)

	s, _ := newTestSession()
	s.Workflow = ComposeWorkflow{}
	s.Transition(SubComposeBody, ModeLine)

	s.feed(context.Background(), d, []byte("hello\r\nworld\r\n"))

	require.Equal(t, []string{"hello", "world"}, got)
}

func TestFeedBuffersPartialLine(t *testing.T) {
	d := newTestDispatcher()
	var got []string
	recorder(d, StateAuthenticated, SubComposeBody, &got)

	s, _ := newTestSession()
	s.Workflow = ComposeWorkflow{}
	s.Transition(SubComposeBody, ModeLine)

	s.feed(context.Background(), d, []byte("par"))
	require.Empty(t, got)
	s.feed(context.Background(), d, []byte("tial\n"))
	require.Equal(t, []string{"partial"}, got)
}

func TestFeedReinterpretsAfterModeSwitch(t *testing.T) {
	d := newTestDispatcher()
	var lines, keys []string
	d.Register(StateAuthenticated, SubJoinSub, func(ctx context.Context, s *Session, input string) error {
		lines = append(lines, input)
		s.Workflow = nil
		s.Transition(SubMenu, ModeHotkey)
		return nil
	})
	recorder(d, StateAuthenticated, SubMenu, &keys)

	s, _ := newTestSession()
	s.Workflow = JoinWorkflow{Channel: "tech"}
	s.Transition(SubJoinSub, ModeLine)

	// The tail after the newline arrives in the same read and must be
	// treated as keystrokes once the handler switches modes.
	s.feed(context.Background(), d, []byte("hardware\nRW"))

	require.Equal(t, []string{"hardware"}, lines)
	require.Equal(t, []string{"R", "W"}, keys)
}

func TestFeedCapsRunawayLine(t *testing.T) {
	d := newTestDispatcher()
	var got []string
	recorder(d, StateAuthenticated, SubComposeBody, &got)

	s, _ := newTestSession()
	s.Workflow = ComposeWorkflow{}
	s.Transition(SubComposeBody, ModeLine)

	s.feed(context.Background(), d, []byte(strings.Repeat("x", maxLineLen*3)))
	require.Empty(t, got)
	require.LessOrEqual(t, len(s.lineBuf), maxLineLen)

	s.feed(context.Background(), d, []byte("\n"))
	require.Len(t, got, 1)
	require.Len(t, got[0], maxLineLen)
}

func TestGrantsBeforeAndAfterAuth(t *testing.T) {
	s := New(&testConn{}, zap.NewNop())
	g := s.Grants()
	require.Equal(t, model.LevelUnset, g.Level)

	s.Authenticate(&model.Principal{
		Username:    "alice",
		Level:       30,
		DenialMarks: "??D",
	})
	g = s.Grants()
	require.Equal(t, 30, g.Level)
	require.Equal(t, authz.MarkDeny, g.Denials.Get(authz.Capability(2)))
	require.Equal(t, authz.MarkUnset, g.Denials.Get(authz.Capability(0)))
}

func TestEnterLeaveChatRestoresPosition(t *testing.T) {
	s, _ := newTestSession()
	s.Transition(SubReadPrompt, ModeHotkey)

	s.EnterChat(ChatWorkflow{})
	require.True(t, s.InChat())
	require.Equal(t, ModeLine, s.Mode)

	s.LeaveChat()
	require.False(t, s.InChat())
	require.Equal(t, SubReadPrompt, s.Sub)
	require.Equal(t, ModeHotkey, s.Mode)
	require.Nil(t, s.Workflow)
}

func TestLeaveChatWithoutSnapshotFallsToMenu(t *testing.T) {
	s, _ := newTestSession()
	s.Sub = SubChat
	s.LeaveChat()
	require.Equal(t, SubMenu, s.Sub)
}

func TestRegistryBindEvicts(t *testing.T) {
	r := NewRegistry()

	s1 := New(&testConn{}, zap.NewNop())
	s1.Authenticate(&model.Principal{Username: "Alice", Level: 20})
	r.Put(s1)
	require.Nil(t, r.Bind(s1))

	s2 := New(&testConn{}, zap.NewNop())
	s2.Authenticate(&model.Principal{Username: "alice", Level: 20})
	r.Put(s2)
	require.Same(t, s1, r.Bind(s2))

	got, ok := r.FindByPrincipal("ALICE")
	require.True(t, ok)
	require.Same(t, s2, got)

	// Removing the evicted session must not unbind the live one.
	r.Remove(s1)
	got, ok = r.FindByPrincipal("alice")
	require.True(t, ok)
	require.Same(t, s2, got)

	r.Remove(s2)
	_, ok = r.FindByPrincipal("alice")
	require.False(t, ok)
	require.Equal(t, 0, r.Len())
}
