package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/crosstalk-io/crosstalk/internal/authz"
)

// DeniedLine is the single user-facing line emitted on an authorization
// denial. Denials are expected outcomes, never logged as errors.
const DeniedLine = "Permission denied."

// HandlerFunc consumes one input event for one sub-state. The handler is
// solely responsible for output and for setting the session's next
// sub-state; the dispatcher applies no default transition afterwards.
type HandlerFunc func(ctx context.Context, s *Session, input string) error

type entry struct {
	fn    HandlerFunc
	cap   authz.Capability
	gated bool
}

type fallback struct {
	sub    SubState
	mode   InputMode
	prompt func(*Session)
}

// Dispatcher routes input events to the handler registered for the
// session's current (state, subState) and gates capability-tagged entries
// through the authorization engine.
type Dispatcher struct {
	log       *zap.Logger
	engine    *authz.Engine
	tables    map[State]map[SubState]entry
	fallbacks map[State]fallback
	start     HandlerFunc
}

// NewDispatcher constructs an empty dispatcher over the given engine.
func NewDispatcher(engine *authz.Engine, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		log:       log,
		engine:    engine,
		tables:    make(map[State]map[SubState]entry),
		fallbacks: make(map[State]fallback),
	}
}

// Register binds a handler to (state, subState).
func (d *Dispatcher) Register(st State, sub SubState, fn HandlerFunc) {
	d.register(st, sub, entry{fn: fn})
}

// RegisterGated binds a handler whose invocation requires a capability.
// An invalid capability is a wiring error and is rejected here, at the
// registration site, not silently at dispatch time.
func (d *Dispatcher) RegisterGated(st State, sub SubState, c authz.Capability, fn HandlerFunc) error {
	if !c.Valid() {
		return fmt.Errorf("register %v/%v: bad capability %d", st, sub, int(c))
	}
	d.register(st, sub, entry{fn: fn, cap: c, gated: true})
	return nil
}

func (d *Dispatcher) register(st State, sub SubState, e entry) {
	tbl, ok := d.tables[st]
	if !ok {
		tbl = make(map[SubState]entry)
		d.tables[st] = tbl
	}
	tbl[sub] = e
}

// SetFallback declares the known-good sub-state for a top-level state:
// where denied, unmapped, and aborted sessions land.
func (d *Dispatcher) SetFallback(st State, sub SubState, mode InputMode) {
	fb := d.fallbacks[st]
	fb.sub, fb.mode = sub, mode
	d.fallbacks[st] = fb
}

// SetFallbackPrompt registers the prompt re-issued after the session is
// forced onto st's fallback sub-state, so the user is never left at a
// silent prompt.
func (d *Dispatcher) SetFallbackPrompt(st State, fn func(*Session)) {
	fb := d.fallbacks[st]
	fb.prompt = fn
	d.fallbacks[st] = fb
}

// SetStart registers the greeting handler invoked once when the worker
// starts, before any input arrives.
func (d *Dispatcher) SetStart(fn HandlerFunc) { d.start = fn }

// Start runs the greeting handler.
func (d *Dispatcher) Start(ctx context.Context, s *Session) {
	if d.start == nil {
		return
	}
	if err := d.start(ctx, s, ""); err != nil {
		d.log.Error("start handler failed", zap.Uint64("session", s.ID), zap.Error(err))
	}
}

// Registered reports whether (state, subState) has a handler (totality
// checks in tests).
func (d *Dispatcher) Registered(st State, sub SubState) bool {
	_, ok := d.tables[st][sub]
	return ok
}

// toFallback forces the session onto its state's known-good sub-state.
func (d *Dispatcher) toFallback(s *Session) {
	fb, ok := d.fallbacks[s.State]
	if !ok {
		fb = fallback{sub: SubMenu, mode: ModeHotkey}
	}
	s.Workflow = nil
	s.Transition(fb.sub, fb.mode)
	if fb.prompt != nil {
		fb.prompt(s)
	}
}

// Dispatch processes one input event for the session's current sub-state.
//
// The uniform abort rule is enforced here, not per handler: a blank line
// while any workflow is open clears it and returns to the fallback
// sub-state. Chat is exempt: a blank chat line is an empty message, and
// leaving chat goes through the pairing protocol instead.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, input string) {
	if s.Workflow != nil && !s.InChat() && strings.TrimSpace(input) == "" && s.Mode == ModeLine {
		s.Send("Aborted.")
		d.toFallback(s)
		return
	}

	e, ok := d.tables[s.State][s.Sub]
	if !ok {
		// Unmapped sub-state: a configuration defect. Fail closed to the
		// menu and keep the connection alive.
		d.log.Warn("unmapped sub-state",
			zap.Uint64("session", s.ID),
			zap.Stringer("state", s.State),
			zap.Stringer("sub", s.Sub),
		)
		d.toFallback(s)
		return
	}

	if e.gated && !d.engine.Authorize(s.Grants(), e.cap) {
		s.Send(DeniedLine)
		d.toFallback(s)
		return
	}

	if err := e.fn(ctx, s, input); err != nil {
		if errors.Is(err, ErrWorkflowMismatch) {
			d.log.Warn("workflow mismatch",
				zap.Uint64("session", s.ID),
				zap.Stringer("sub", s.Sub),
			)
			d.toFallback(s)
			return
		}
		d.log.Error("handler failed",
			zap.Uint64("session", s.ID),
			zap.Stringer("sub", s.Sub),
			zap.Error(err),
		)
		s.Send("That didn't work. Returning to the menu.")
		d.toFallback(s)
	}
}
