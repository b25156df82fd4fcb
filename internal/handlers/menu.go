package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/crosstalk-io/crosstalk/internal/authz"
	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/crosstalk-io/crosstalk/internal/session"
)

func hotkey(input string) byte {
	if input == "" {
		return 0
	}
	b := input[0]
	if b >= 'a' && b <= 'z' {
		b -= 'a' - 'A'
	}
	return b
}

// menu consumes one keystroke at the main menu. An unanswered page offer
// claims Y and N before they mean anything else.
func (h *Handlers) menu(ctx context.Context, s *session.Session, input string) error {
	key := hotkey(input)
	if key == 0 {
		h.menuPrompt(s)
		return nil
	}

	if s.PendingOffer != uuid.Nil && (key == 'Y' || key == 'N') {
		return h.answerOffer(ctx, s, key == 'Y')
	}

	switch key {
	case 'R':
		if !h.allow(s, authz.CapReadMessages) {
			h.deny(s)
			return nil
		}
		return h.readNext(ctx, s, true)
	case 'N':
		if !h.allow(s, authz.CapReadMessages) {
			h.deny(s)
			return nil
		}
		return h.scan(ctx, s)
	case 'P':
		if !h.allow(s, authz.CapPostPublic) {
			h.deny(s)
			return nil
		}
		s.Workflow = session.ComposeWorkflow{}
		s.Prompt("To (ALL for everyone): ")
		s.Transition(session.SubComposeTo, session.ModeLine)
	case 'J':
		if !h.allow(s, authz.CapJoinSub) {
			h.deny(s)
			return nil
		}
		s.Workflow = session.JoinWorkflow{}
		s.Prompt("Channel: ")
		s.Transition(session.SubJoinChannel, session.ModeLine)
	case 'C':
		if !h.allow(s, authz.CapPageChat) {
			h.deny(s)
			return nil
		}
		s.Workflow = session.PageWorkflow{}
		s.Prompt("Page who? ")
		s.Transition(session.SubPageWho, session.ModeLine)
	case 'W':
		if !h.allow(s, authz.CapWhoList) {
			h.deny(s)
			return nil
		}
		h.who(s)
	case 'G':
		s.Prompt("Log off? (Y/N) ")
		s.Transition(session.SubLogoffConfirm, session.ModeHotkey)
	default:
		h.menuPrompt(s)
	}
	return nil
}

func (h *Handlers) answerOffer(ctx context.Context, s *session.Session, accept bool) error {
	id := s.PendingOffer
	s.PendingOffer = uuid.Nil
	if accept {
		if err := h.pairs.Accept(ctx, id, s); err != nil {
			s.Send("That page is gone.")
			h.menuPrompt(s)
		}
		// On success the PairingStartedEvent moves this session into chat.
		return nil
	}
	if err := h.pairs.Decline(ctx, id, s); err != nil {
		s.Send("That page is gone.")
	} else {
		s.Send("Declined.")
	}
	h.menuPrompt(s)
	return nil
}

func (h *Handlers) who(s *session.Session) {
	online := h.reg.Find(func(o *session.Session) bool { return o.Principal != nil })
	names := make([]string, 0, len(online))
	for _, o := range online {
		names = append(names, o.Username())
	}
	sort.Strings(names)
	if len(names) == 0 {
		s.Send("Nobody else is online.")
	} else {
		s.Send("Online: " + strings.Join(names, ", "))
	}
	h.menuPrompt(s)
}

// scan counts everything up to the watermark as seen.
func (h *Handlers) scan(ctx context.Context, s *session.Session) error {
	fresh, err := h.board.Scan(ctx, s.Principal.ID, s.Channel)
	if err != nil {
		return err
	}
	if fresh {
		s.Send(fmt.Sprintf("New items in %s/%s marked as seen.", s.Channel.Channel, s.Channel.Sub))
	} else {
		s.Send("Nothing new.")
	}
	if others, err := h.board.ChannelsWithUnseen(ctx, s.Principal.ID); err == nil {
		var rest []string
		for _, ch := range others {
			if ch != s.Channel {
				rest = append(rest, ch.Channel+"/"+ch.Sub)
			}
		}
		if len(rest) > 0 {
			s.Send("Also new in: " + strings.Join(rest, ", "))
		}
	}
	h.menuPrompt(s)
	return nil
}

// readNext shows the next unread item and moves into the read prompt, or
// reports the caught-up condition and returns to the menu.
func (h *Handlers) readNext(ctx context.Context, s *session.Session, first bool) error {
	m, err := h.board.ReadNext(ctx, s.Principal.ID, s.Username(), s.Channel)
	if errors.Is(err, errs.ErrNotFound) {
		if first {
			s.Send("No new messages.")
		} else {
			s.Send("No more messages.")
		}
		h.toMenu(s)
		return nil
	}
	if err != nil {
		return err
	}
	h.showMessage(s, m)
	s.Workflow = session.ReadWorkflow{ItemID: m.ItemID, Author: m.Author}
	s.Prompt(readPromptLine)
	s.Transition(session.SubReadPrompt, session.ModeHotkey)
	return nil
}

const readPromptLine = "[N]ext [K]ill [Q]uit: "

func (h *Handlers) showMessage(s *session.Session, m *model.Message) {
	tag := ""
	if m.Private {
		tag = " (private)"
	}
	s.Send(fmt.Sprintf("#%d %s/%s from %s%s", m.ItemID, m.Channel, m.Sub, m.Author, tag))
	s.Send("Subject: " + m.Subject)
	for _, line := range strings.Split(m.Body, "\n") {
		s.Send(line)
	}
}

func (h *Handlers) readPrompt(ctx context.Context, s *session.Session, input string) error {
	switch hotkey(input) {
	case 'N':
		return h.readNext(ctx, s, false)
	case 'K':
		return h.killCurrent(ctx, s)
	case 'Q':
		h.toMenu(s)
	default:
		s.Prompt(readPromptLine)
	}
	return nil
}

// killCurrent tombstones the item on screen, own messages only.
func (h *Handlers) killCurrent(ctx context.Context, s *session.Session) error {
	wf, ok := s.Workflow.(session.ReadWorkflow)
	if !ok {
		return session.ErrWorkflowMismatch
	}
	if wf.Author != s.Username() {
		s.Send("You can only kill your own messages.")
		s.Prompt(readPromptLine)
		return nil
	}
	if !h.allow(s, authz.CapKillOwnMessage) {
		h.deny(s)
		return nil
	}
	if err := h.board.Kill(ctx, s.Channel, wf.ItemID); err != nil {
		return err
	}
	s.Send(fmt.Sprintf("Message #%d killed.", wf.ItemID))
	return h.readNext(ctx, s, false)
}

func (h *Handlers) joinChannel(ctx context.Context, s *session.Session, input string) error {
	wf, ok := s.Workflow.(session.JoinWorkflow)
	if !ok {
		return session.ErrWorkflowMismatch
	}
	wf.Channel = strings.TrimSpace(input)
	s.Workflow = wf
	s.Prompt("Sub-channel: ")
	s.Transition(session.SubJoinSub, session.ModeLine)
	return nil
}

func (h *Handlers) joinSub(ctx context.Context, s *session.Session, input string) error {
	wf, ok := s.Workflow.(session.JoinWorkflow)
	if !ok {
		return session.ErrWorkflowMismatch
	}
	ch := model.ChannelKey{Channel: wf.Channel, Sub: strings.TrimSpace(input)}
	s.Channel = ch
	s.Workflow = nil

	h.lgr.LoadCursor(ctx, s.Principal.ID, ch)
	s.Send(fmt.Sprintf("Joined %s/%s.", ch.Channel, ch.Sub))
	if unseen, err := h.lgr.HasUnseen(ctx, s.Principal.ID, ch); err == nil && unseen {
		s.Send("New items here.")
	}
	h.toMenu(s)
	return nil
}
