// Package handlers wires the dispatch table: one handler per (state,
// sub-state), plus the greeting. Handlers own all user-facing output and
// every forward transition; recovery transitions belong to the dispatcher.
package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crosstalk-io/crosstalk/internal/authz"
	"github.com/crosstalk-io/crosstalk/internal/ledger"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/crosstalk-io/crosstalk/internal/pairing"
	"github.com/crosstalk-io/crosstalk/internal/service"
	"github.com/crosstalk-io/crosstalk/internal/session"
)

// Deps carries everything the handler set needs.
type Deps struct {
	Log      *zap.Logger
	Auth     service.AuthService
	Board    service.BoardService
	Ledger   *ledger.Service
	Engine   *authz.Engine
	Registry *session.Registry
	Pairings *pairing.Manager

	// Home is the sub-channel every session lands in after login.
	Home model.ChannelKey
}

// Handlers is the full handler set for one server instance.
type Handlers struct {
	log    *zap.Logger
	auth   service.AuthService
	board  service.BoardService
	lgr    *ledger.Service
	engine *authz.Engine
	reg    *session.Registry
	pairs  *pairing.Manager
	home   model.ChannelKey
}

// New constructs the handler set.
func New(d Deps) *Handlers {
	return &Handlers{
		log:    d.Log,
		auth:   d.Auth,
		board:  d.Board,
		lgr:    d.Ledger,
		engine: d.Engine,
		reg:    d.Registry,
		pairs:  d.Pairings,
		home:   d.Home,
	}
}

// BuildDispatcher registers every handler and fallback into a fresh
// dispatcher. Workflow steps that require a capability are gated at the
// dispatcher so a session cannot sidestep the check by arriving mid-chain.
func (h *Handlers) BuildDispatcher() (*session.Dispatcher, error) {
	d := session.NewDispatcher(h.engine, h.log)
	d.SetStart(h.greet)

	d.SetFallback(session.StateConnecting, session.SubNone, session.ModeHotkey)
	d.SetFallback(session.StateAuthenticating, session.SubLoginName, session.ModeLine)
	d.SetFallback(session.StateAuthenticated, session.SubMenu, session.ModeHotkey)
	d.SetFallbackPrompt(session.StateAuthenticating, h.promptName)
	d.SetFallbackPrompt(session.StateAuthenticated, h.menuPrompt)

	d.Register(session.StateConnecting, session.SubNone, h.connecting)
	d.Register(session.StateAuthenticating, session.SubLoginName, h.loginName)
	d.Register(session.StateAuthenticating, session.SubLoginPassword, h.loginPassword)
	d.Register(session.StateAuthenticating, session.SubRegisterPassword, h.registerPassword)

	d.Register(session.StateAuthenticated, session.SubMenu, h.menu)
	d.Register(session.StateAuthenticated, session.SubChat, h.chat)
	d.Register(session.StateAuthenticated, session.SubLogoffConfirm, h.logoffConfirm)

	gated := []struct {
		sub session.SubState
		cap authz.Capability
		fn  session.HandlerFunc
	}{
		{session.SubReadPrompt, authz.CapReadMessages, h.readPrompt},
		{session.SubComposeTo, authz.CapPostPublic, h.composeTo},
		{session.SubComposeSubject, authz.CapPostPublic, h.composeSubject},
		{session.SubComposePrivate, authz.CapPostPublic, h.composePrivate},
		{session.SubComposeBody, authz.CapPostPublic, h.composeBody},
		{session.SubJoinChannel, authz.CapJoinSub, h.joinChannel},
		{session.SubJoinSub, authz.CapJoinSub, h.joinSub},
		{session.SubPageWho, authz.CapPageChat, h.pageWho},
	}
	for _, g := range gated {
		if err := d.RegisterGated(session.StateAuthenticated, g.sub, g.cap, g.fn); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// greet runs once per connection before any input.
func (h *Handlers) greet(ctx context.Context, s *session.Session, _ string) error {
	s.Send("Welcome to Crosstalk.")
	s.Send("")
	s.State = session.StateAuthenticating
	s.Transition(session.SubLoginName, session.ModeLine)
	h.promptName(s)
	return nil
}

// connecting catches input that beats the greeting; it just moves the
// session to the login prompt.
func (h *Handlers) connecting(ctx context.Context, s *session.Session, _ string) error {
	s.State = session.StateAuthenticating
	s.Transition(session.SubLoginName, session.ModeLine)
	h.promptName(s)
	return nil
}

func (h *Handlers) allow(s *session.Session, c authz.Capability) bool {
	return h.engine.Authorize(s.Grants(), c)
}

// deny emits the single denial line and re-shows the menu.
func (h *Handlers) deny(s *session.Session) {
	s.Send(session.DeniedLine)
	h.toMenu(s)
}

// toMenu clears any workflow and lands the session on the main menu.
func (h *Handlers) toMenu(s *session.Session) {
	s.Workflow = nil
	s.Transition(session.SubMenu, session.ModeHotkey)
	h.menuPrompt(s)
}

func (h *Handlers) menuPrompt(s *session.Session) {
	s.Prompt(fmt.Sprintf("[%s/%s] R)ead N)ew scan P)ost J)oin C)hat W)ho G)oodbye: ",
		s.Channel.Channel, s.Channel.Sub))
}
