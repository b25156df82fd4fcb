// Package pairing implements the two-party page/chat handshake layered on
// top of two independent session state machines.
//
// The pairing table is shared mutable state guarded by a mutex held only
// for table access; all effects on sessions are delivered as inbox events
// after the lock is released.
package pairing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/session"
)

// Status is the pairing lifecycle state. Transitions are monotonic:
// requested moves to exactly one of active/declined/timed-out, and active
// only to ended.
type Status int

const (
	StatusRequested Status = iota
	StatusActive
	StatusDeclined
	StatusTimedOut
	StatusEnded
)

func (st Status) String() string {
	switch st {
	case StatusRequested:
		return "requested"
	case StatusActive:
		return "active"
	case StatusDeclined:
		return "declined"
	case StatusTimedOut:
		return "timed-out"
	case StatusEnded:
		return "ended"
	}
	return "status(?)"
}

// DefaultTimeout is how long a page offer stays open.
const DefaultTimeout = 30 * time.Second

// DefaultMaxMessageLen bounds one chat line.
const DefaultMaxMessageLen = 256

type pairing struct {
	id        uuid.UUID
	initiator *session.Session
	recipient *session.Session
	status    Status
	seq       int64
	createdAt time.Time
	timer     *time.Timer
}

func (p *pairing) other(s *session.Session) *session.Session {
	if s.ID == p.initiator.ID {
		return p.recipient
	}
	return p.initiator
}

func (p *pairing) party(s *session.Session) bool {
	return s.ID == p.initiator.ID || s.ID == p.recipient.ID
}

// Manager owns the pairing table.
type Manager struct {
	log      *zap.Logger
	registry *session.Registry
	timeout  time.Duration
	maxLen   int

	mu        sync.Mutex
	byID      map[uuid.UUID]*pairing
	bySession map[uint64]uuid.UUID // any live (requested or active) pairing
}

// NewManager constructs a pairing manager over the session registry.
func NewManager(registry *session.Registry, timeout time.Duration, maxLen int, log *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLen
	}
	return &Manager{
		log:       log,
		registry:  registry,
		timeout:   timeout,
		maxLen:    maxLen,
		byID:      make(map[uuid.UUID]*pairing),
		bySession: make(map[uint64]uuid.UUID),
	}
}

// Request creates a requested pairing from the initiator to the named
// principal and arms the offer timeout. Both parties are reserved
// immediately, so neither can enter a second pairing while this one is
// open.
func (m *Manager) Request(ctx context.Context, from *session.Session, toName string) (uuid.UUID, error) {
	target, ok := m.registry.FindByPrincipal(toName)
	if !ok {
		return uuid.Nil, errs.ErrNotConnected
	}
	if target.ID == from.ID {
		return uuid.Nil, fmt.Errorf("%w: cannot page yourself", errs.ErrNotConnected)
	}
	if target.Principal != nil && target.Principal.NoPage {
		return uuid.Nil, errs.ErrPagingDisabled
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}

	m.mu.Lock()
	if _, busy := m.bySession[from.ID]; busy {
		m.mu.Unlock()
		return uuid.Nil, errs.ErrAlreadyPaired
	}
	if _, busy := m.bySession[target.ID]; busy {
		m.mu.Unlock()
		return uuid.Nil, errs.ErrAlreadyPaired
	}
	p := &pairing{
		id:        id,
		initiator: from,
		recipient: target,
		status:    StatusRequested,
		createdAt: time.Now(),
	}
	p.timer = time.AfterFunc(m.timeout, func() { m.expire(id) })
	m.byID[id] = p
	m.bySession[from.ID] = id
	m.bySession[target.ID] = id
	m.mu.Unlock()

	target.Post(session.PageOfferEvent{PairingID: id, From: from.Username()})
	m.log.Info("pairing requested",
		zap.String("pairing", id.String()),
		zap.String("from", from.Username()),
		zap.String("to", toName),
	)
	return id, nil
}

// Accept transitions a requested pairing to active. Only the intended
// recipient may accept. Both sessions receive the start event and switch
// themselves into chat, snapshotting their own pre-pairing position.
func (m *Manager) Accept(ctx context.Context, id uuid.UUID, by *session.Session) error {
	m.mu.Lock()
	p, ok := m.byID[id]
	if !ok || p.status != StatusRequested {
		m.mu.Unlock()
		return errs.ErrPairingNotFound
	}
	if by.ID != p.recipient.ID {
		m.mu.Unlock()
		return errs.ErrNotRecipient
	}
	p.timer.Stop()
	p.status = StatusActive
	m.mu.Unlock()

	p.initiator.Post(session.PairingStartedEvent{PairingID: id, With: p.recipient.Username()})
	p.recipient.Post(session.PairingStartedEvent{PairingID: id, With: p.initiator.Username()})
	m.log.Info("pairing active", zap.String("pairing", id.String()))
	return nil
}

// Decline rejects a requested pairing. The decliner stays exactly where it
// was; only the initiator is notified.
func (m *Manager) Decline(ctx context.Context, id uuid.UUID, by *session.Session) error {
	m.mu.Lock()
	p, ok := m.byID[id]
	if !ok || p.status != StatusRequested {
		m.mu.Unlock()
		return errs.ErrPairingNotFound
	}
	if by.ID != p.recipient.ID {
		m.mu.Unlock()
		return errs.ErrNotRecipient
	}
	p.timer.Stop()
	p.status = StatusDeclined
	m.remove(p)
	m.mu.Unlock()

	p.initiator.Post(session.PairingEndedEvent{
		PairingID: id,
		Reason:    fmt.Sprintf("%s declined your page.", p.recipient.Username()),
	})
	m.log.Info("pairing declined", zap.String("pairing", id.String()))
	return nil
}

// Send fans one chat line out to both parties with the pairing's next
// sequence number. Valid only while active; empty and oversized payloads
// are rejected without state change.
func (m *Manager) Send(ctx context.Context, id uuid.UUID, from *session.Session, text string) error {
	if text == "" {
		return errs.ErrEmptyMessage
	}
	if len(text) > m.maxLen {
		return errs.ErrMessageTooLong
	}

	m.mu.Lock()
	p, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return errs.ErrPairingNotFound
	}
	if !p.party(from) {
		m.mu.Unlock()
		return errs.ErrNotRecipient
	}
	if p.status != StatusActive {
		m.mu.Unlock()
		return errs.ErrPairingNotActive
	}
	p.seq++
	ev := session.ChatMessageEvent{
		PairingID: id,
		Seq:       p.seq,
		From:      from.Username(),
		Text:      text,
		At:        time.Now(),
	}
	a, b := p.initiator, p.recipient
	m.mu.Unlock()

	a.Post(ev)
	b.Post(ev)
	return nil
}

// End closes an active pairing from either side. Ending an already-closed
// or unknown pairing is a no-op, not an error: a voluntary end and a
// disconnect can race to close the same pairing.
func (m *Manager) End(ctx context.Context, id uuid.UUID, by *session.Session) error {
	m.mu.Lock()
	p, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if by != nil && !p.party(by) {
		m.mu.Unlock()
		return errs.ErrNotRecipient
	}
	if p.status != StatusActive {
		m.mu.Unlock()
		return nil
	}
	p.status = StatusEnded
	m.remove(p)
	m.mu.Unlock()

	ev := session.PairingEndedEvent{PairingID: id, Reason: "Chat ended."}
	p.initiator.Post(ev)
	p.recipient.Post(ev)
	m.log.Info("pairing ended", zap.String("pairing", id.String()))
	return nil
}

// EndForSession closes whatever pairing the session participates in. Called
// synchronously on the disconnect path so the surviving peer is released
// before the disconnecting session's resources go away.
func (m *Manager) EndForSession(ctx context.Context, s *session.Session) {
	m.mu.Lock()
	id, ok := m.bySession[s.ID]
	if !ok {
		m.mu.Unlock()
		return
	}
	p := m.byID[id]
	if p == nil {
		delete(m.bySession, s.ID)
		m.mu.Unlock()
		return
	}
	prior := p.status
	p.timer.Stop()
	switch prior {
	case StatusRequested:
		if s.ID == p.recipient.ID {
			p.status = StatusDeclined
		} else {
			p.status = StatusTimedOut
		}
	case StatusActive:
		p.status = StatusEnded
	}
	m.remove(p)
	other := p.other(s)
	m.mu.Unlock()

	switch prior {
	case StatusRequested:
		other.Post(session.PairingEndedEvent{
			PairingID: id,
			Reason:    fmt.Sprintf("%s disconnected.", s.Username()),
		})
	case StatusActive:
		other.Post(session.PairingEndedEvent{
			PairingID: id,
			Reason:    fmt.Sprintf("%s disconnected. Chat ended.", s.Username()),
		})
	}
	m.log.Info("pairing closed on disconnect",
		zap.String("pairing", id.String()),
		zap.Uint64("session", s.ID),
	)
}

// Status returns the live status of a pairing; ok is false once the
// pairing has reached a terminal state and been dropped from the table.
func (m *Manager) Status(id uuid.UUID) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return StatusEnded, false
	}
	return p.status, true
}

// PairingFor returns the live pairing id a session participates in.
func (m *Manager) PairingFor(s *session.Session) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySession[s.ID]
	return id, ok
}

// expire fires when the offer timer elapses. It transitions only a pairing
// still in requested, so a timer racing an accept or decline is a no-op,
// and each side is notified exactly once.
func (m *Manager) expire(id uuid.UUID) {
	m.mu.Lock()
	p, ok := m.byID[id]
	if !ok || p.status != StatusRequested {
		m.mu.Unlock()
		return
	}
	p.status = StatusTimedOut
	m.remove(p)
	m.mu.Unlock()

	p.initiator.Post(session.PairingEndedEvent{
		PairingID: id,
		Reason:    fmt.Sprintf("%s did not answer your page.", p.recipient.Username()),
	})
	p.recipient.Post(session.PairingEndedEvent{
		PairingID: id,
		Reason:    "Page request timed out.",
	})
	m.log.Info("pairing timed out", zap.String("pairing", id.String()))
}

// remove drops the pairing from both indexes. Caller holds the mutex.
func (m *Manager) remove(p *pairing) {
	delete(m.byID, p.id)
	delete(m.bySession, p.initiator.ID)
	delete(m.bySession, p.recipient.ID)
}
