package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/crosstalk-io/crosstalk/internal/session"
)

func (h *Handlers) promptName(s *session.Session) {
	s.Prompt("Name (NEW to register, !token to resume): ")
}

// backToName restarts the authentication dialogue after a failure.
func (h *Handlers) backToName(s *session.Session) {
	s.Workflow = nil
	s.Transition(session.SubLoginName, session.ModeLine)
	h.promptName(s)
}

// loginName consumes the name prompt. Three forms are accepted: a plain
// account name, the literal NEW to register, and !token to resume an
// earlier login. When a registration is underway the same prompt collects
// the new account's name.
func (h *Handlers) loginName(ctx context.Context, s *session.Session, input string) error {
	input = strings.TrimSpace(input)

	if wf, ok := s.Workflow.(session.LoginWorkflow); ok && wf.Registering {
		wf.Name = input
		s.Workflow = wf
		s.Prompt("Choose a password: ")
		s.Transition(session.SubRegisterPassword, session.ModeLine)
		return nil
	}

	switch {
	case input == "":
		h.promptName(s)
	case strings.EqualFold(input, "NEW"):
		s.Workflow = session.LoginWorkflow{Registering: true}
		s.Prompt("New account name: ")
	case strings.HasPrefix(input, "!"):
		return h.resume(ctx, s, strings.TrimPrefix(input, "!"))
	default:
		s.Workflow = session.LoginWorkflow{Name: input}
		s.Prompt("Password: ")
		s.Transition(session.SubLoginPassword, session.ModeLine)
	}
	return nil
}

func (h *Handlers) loginPassword(ctx context.Context, s *session.Session, input string) error {
	wf, ok := s.Workflow.(session.LoginWorkflow)
	if !ok || wf.Registering {
		return session.ErrWorkflowMismatch
	}
	p, tok, err := h.auth.LoginWithIP(ctx, wf.Name, input, s.RemoteAddr())
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		s.Send("Too many attempts. Try again later.")
		h.backToName(s)
	case err != nil:
		s.Send("Wrong name or password.")
		h.backToName(s)
	default:
		h.finishLogin(ctx, s, p, tok.Token)
	}
	return nil
}

func (h *Handlers) registerPassword(ctx context.Context, s *session.Session, input string) error {
	wf, ok := s.Workflow.(session.LoginWorkflow)
	if !ok || !wf.Registering {
		return session.ErrWorkflowMismatch
	}
	p, err := h.auth.Register(ctx, wf.Name, input)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			s.Send("That name is taken.")
		} else {
			s.Send("Registration failed: " + err.Error())
		}
		h.backToName(s)
		return nil
	}
	s.Send("Account created.")
	h.finishLogin(ctx, s, p, "")
	return nil
}

func (h *Handlers) resume(ctx context.Context, s *session.Session, token string) error {
	p, err := h.auth.Resume(ctx, token)
	if err != nil {
		s.Send("Resume token rejected.")
		h.backToName(s)
		return nil
	}
	h.finishLogin(ctx, s, p, "")
	return nil
}

// finishLogin completes authentication regardless of which path got here.
// A lingering earlier connection for the same principal is evicted so the
// name maps to exactly one live session.
func (h *Handlers) finishLogin(ctx context.Context, s *session.Session, p *model.Principal, token string) {
	s.Authenticate(p)
	if evicted := h.reg.Bind(s); evicted != nil {
		evicted.Post(session.NoticeEvent{Text: "You logged in from another terminal. Goodbye."})
		evicted.Disconnect()
	}
	s.Workflow = nil
	s.Channel = h.home

	s.Send(fmt.Sprintf("Welcome, %s.", p.Username))
	if token != "" {
		s.Send("Resume token: !" + token)
	}
	h.lgr.LoadCursor(ctx, p.ID, s.Channel)
	if unseen, err := h.lgr.HasUnseen(ctx, p.ID, s.Channel); err == nil && unseen {
		s.Send(fmt.Sprintf("New items in %s/%s.", s.Channel.Channel, s.Channel.Sub))
	}
	h.toMenu(s)
}
