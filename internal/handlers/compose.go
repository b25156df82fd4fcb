package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/crosstalk-io/crosstalk/internal/authz"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/crosstalk-io/crosstalk/internal/service"
	"github.com/crosstalk-io/crosstalk/internal/session"
)

func (h *Handlers) composeTo(ctx context.Context, s *session.Session, input string) error {
	wf, ok := s.Workflow.(session.ComposeWorkflow)
	if !ok {
		return session.ErrWorkflowMismatch
	}
	to := strings.TrimSpace(input)
	if strings.EqualFold(to, "ALL") {
		to = ""
	}
	wf.To = to
	s.Workflow = wf
	s.Prompt("Subject: ")
	s.Transition(session.SubComposeSubject, session.ModeLine)
	return nil
}

func (h *Handlers) composeSubject(ctx context.Context, s *session.Session, input string) error {
	wf, ok := s.Workflow.(session.ComposeWorkflow)
	if !ok {
		return session.ErrWorkflowMismatch
	}
	if len(input) > service.MaxSubjectLen {
		s.Send("Subject too long.")
		s.Prompt("Subject: ")
		return nil
	}
	wf.Subject = input
	s.Workflow = wf
	if wf.To == "" {
		h.startBody(s)
		return nil
	}
	s.Prompt("Private? (Y/N) ")
	s.Transition(session.SubComposePrivate, session.ModeHotkey)
	return nil
}

func (h *Handlers) composePrivate(ctx context.Context, s *session.Session, input string) error {
	wf, ok := s.Workflow.(session.ComposeWorkflow)
	if !ok {
		return session.ErrWorkflowMismatch
	}
	switch hotkey(input) {
	case 'Y':
		if !h.allow(s, authz.CapPostPrivate) {
			h.deny(s)
			return nil
		}
		wf.Private = true
	case 'N':
		wf.Private = false
	default:
		s.Prompt("Private? (Y/N) ")
		return nil
	}
	s.Workflow = wf
	h.startBody(s)
	return nil
}

func (h *Handlers) startBody(s *session.Session) {
	s.Send("Enter your message. /S on its own line saves it.")
	s.Transition(session.SubComposeBody, session.ModeLine)
}

func (h *Handlers) composeBody(ctx context.Context, s *session.Session, input string) error {
	wf, ok := s.Workflow.(session.ComposeWorkflow)
	if !ok {
		return session.ErrWorkflowMismatch
	}
	if strings.EqualFold(strings.TrimSpace(input), "/s") {
		return h.saveMessage(ctx, s, wf)
	}
	wf.Body = append(wf.Body, input)
	s.Workflow = wf
	if len(wf.Body) >= service.MaxBodyLines {
		s.Send("Body limit reached; saving.")
		return h.saveMessage(ctx, s, wf)
	}
	return nil
}

func (h *Handlers) saveMessage(ctx context.Context, s *session.Session, wf session.ComposeWorkflow) error {
	m := &model.Message{
		ChannelKey: s.Channel,
		Author:     s.Username(),
		Recipient:  wf.To,
		Subject:    wf.Subject,
		Private:    wf.Private,
		Body:       strings.Join(wf.Body, "\n"),
	}
	id, err := h.board.Post(ctx, m)
	if err != nil {
		return err
	}
	s.Send(fmt.Sprintf("Message #%d posted.", id))
	h.toMenu(s)
	return nil
}
