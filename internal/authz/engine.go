package authz

import (
	"github.com/crosstalk-io/crosstalk/internal/model"
)

// Table maps each capability to the minimum authorization level required
// when no override applies. It is configuration data: construct with
// DefaultTable and adjust entries at wiring time.
type Table [Count]uint8

// DefaultTable returns the stock minimum-level table.
func DefaultTable() Table {
	var t Table
	t[CapReadMessages] = 10
	t[CapPostPublic] = 20
	t[CapPostPrivate] = 20
	t[CapKillOwnMessage] = 20
	t[CapDownload] = 30
	t[CapUpload] = 30
	t[CapPageChat] = 20
	t[CapVote] = 20
	t[CapWhoList] = 10
	t[CapBulletins] = 10
	t[CapDoorGame] = 20
	t[CapSysop] = 250
	return t
}

// alwaysAllowed are capabilities granted to every session regardless of
// level, provided no override denies them first.
var alwaysAllowed = map[Capability]bool{
	CapJoinSub:       true,
	CapCustomCommand: true,
	CapExpirePolicy:  true,
}

// Grants is the per-decision input: the principal's static level and
// deny-always marks plus the session's temporary marks.
type Grants struct {
	Level   int // model.LevelUnset until the principal's level is loaded
	Denials OverrideSet
	Session OverrideSet
}

// Engine evaluates capability checks against a level table.
type Engine struct {
	table Table
}

// NewEngine constructs an engine over the given level table.
func NewEngine(table Table) *Engine {
	return &Engine{table: table}
}

// Authorize resolves the precedence chain, first match wins:
//
//  1. deny-always mark set -> deny
//  2. session mark set -> that mark
//  3. always-allowed capability -> allow
//  4. level unset -> deny
//  5. level >= table minimum -> allow (MaxLevel always passes)
//
// An out-of-range capability denies; callers validate indices before
// registering gated handlers, so reaching this with one is a defect.
func (e *Engine) Authorize(g Grants, c Capability) bool {
	if !c.Valid() {
		return false
	}
	if g.Denials.Get(c) == MarkDeny {
		return false
	}
	switch g.Session.Get(c) {
	case MarkGrant:
		return true
	case MarkDeny:
		return false
	}
	if alwaysAllowed[c] {
		return true
	}
	if g.Level == model.LevelUnset {
		return false
	}
	if g.Level >= model.MaxLevel {
		return true
	}
	return g.Level >= int(e.table[c])
}

// MinLevel returns the table minimum for c (diagnostics and tests).
func (e *Engine) MinLevel(c Capability) uint8 {
	if !c.Valid() {
		return 0
	}
	return e.table[c]
}
