package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/session"
)

func (h *Handlers) pageWho(ctx context.Context, s *session.Session, input string) error {
	if _, ok := s.Workflow.(session.PageWorkflow); !ok {
		return session.ErrWorkflowMismatch
	}
	name := strings.TrimSpace(input)
	_, err := h.pairs.Request(ctx, s, name)
	s.Workflow = nil
	switch {
	case errors.Is(err, errs.ErrNotConnected):
		s.Send(fmt.Sprintf("%s is not connected.", name))
	case errors.Is(err, errs.ErrPagingDisabled):
		s.Send(fmt.Sprintf("%s is not accepting pages.", name))
	case errors.Is(err, errs.ErrAlreadyPaired):
		s.Send("A page or chat is already in progress.")
	case err != nil:
		return err
	default:
		s.Send(fmt.Sprintf("Paging %s. You will be connected if they answer.", name))
	}
	h.toMenu(s)
	return nil
}

// chat relays one line into the live pairing. /x ends it; the restore to
// the pre-chat position rides in on the PairingEndedEvent.
func (h *Handlers) chat(ctx context.Context, s *session.Session, input string) error {
	wf, ok := s.Workflow.(session.ChatWorkflow)
	if !ok {
		return session.ErrWorkflowMismatch
	}
	if strings.EqualFold(strings.TrimSpace(input), "/x") {
		return h.pairs.End(ctx, wf.PairingID, s)
	}
	err := h.pairs.Send(ctx, wf.PairingID, s, input)
	switch {
	case errors.Is(err, errs.ErrEmptyMessage):
		// Blank chat lines are dropped, not aborted.
	case errors.Is(err, errs.ErrMessageTooLong):
		s.Send("Message too long.")
	case errors.Is(err, errs.ErrPairingNotFound), errors.Is(err, errs.ErrPairingNotActive):
		s.Send("The chat is over.")
		s.LeaveChat()
		if s.Sub == session.SubMenu {
			h.menuPrompt(s)
		}
	case err != nil:
		return err
	}
	return nil
}

func (h *Handlers) logoffConfirm(ctx context.Context, s *session.Session, input string) error {
	if hotkey(input) == 'Y' {
		s.Send("Goodbye!")
		s.Disconnect()
		return nil
	}
	h.toMenu(s)
	return nil
}
