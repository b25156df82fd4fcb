// Package authz resolves whether a session may perform a tagged capability.
//
// Resolution is a fixed precedence chain over in-memory inputs only: the
// principal's deny-always marks, the session's temporary override marks, a
// small always-allowed set, and finally the static minimum-level table. No
// I/O happens on the Authorize path.
package authz

import (
	"fmt"

	"github.com/crosstalk-io/crosstalk/internal/errs"
)

// Capability names one gated action. The enum is closed: OverrideSet and
// Table are arrays sized to Count, so there is no lazy growth to get wrong.
type Capability int

const (
	CapReadMessages Capability = iota
	CapPostPublic
	CapPostPrivate
	CapKillOwnMessage
	CapDownload
	CapUpload
	CapPageChat
	CapVote
	CapWhoList
	CapBulletins
	CapDoorGame
	CapJoinSub       // always allowed
	CapCustomCommand // always allowed
	CapExpirePolicy  // always allowed
	CapSysop

	// Count is the number of capabilities; keep it last.
	Count
)

var capNames = [Count]string{
	CapReadMessages:   "read-messages",
	CapPostPublic:     "post-public",
	CapPostPrivate:    "post-private",
	CapKillOwnMessage: "kill-own-message",
	CapDownload:       "download",
	CapUpload:         "upload",
	CapPageChat:       "page-chat",
	CapVote:           "vote",
	CapWhoList:        "who-list",
	CapBulletins:      "bulletins",
	CapDoorGame:       "door-game",
	CapJoinSub:        "join-sub",
	CapCustomCommand:  "custom-command",
	CapExpirePolicy:   "expire-policy",
	CapSysop:          "sysop",
}

// String returns the capability's wire/log name.
func (c Capability) String() string {
	if c < 0 || c >= Count {
		return fmt.Sprintf("capability(%d)", int(c))
	}
	return capNames[c]
}

// Valid reports whether c is inside the closed enum.
func (c Capability) Valid() bool { return c >= 0 && c < Count }

// Mark is one override slot: indeterminate, grant, or deny.
type Mark uint8

const (
	MarkUnset Mark = iota
	MarkGrant
	MarkDeny
)

// OverrideSet holds one mark per capability. The zero value is all-unset.
type OverrideSet [Count]Mark

// Set records a grant/deny mark for c.
func (o *OverrideSet) Set(c Capability, m Mark) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %d", errs.ErrBadCapability, int(c))
	}
	o[c] = m
	return nil
}

// Clear resets the mark for c to indeterminate.
func (o *OverrideSet) Clear(c Capability) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %d", errs.ErrBadCapability, int(c))
	}
	o[c] = MarkUnset
	return nil
}

// Get returns the mark for c, or MarkUnset for an out-of-range capability.
func (o *OverrideSet) Get(c Capability) Mark {
	if !c.Valid() {
		return MarkUnset
	}
	return o[c]
}

// markChars is the persistence alphabet: one character per capability index.
const (
	charUnset = '?'
	charGrant = 'G'
	charDeny  = 'D'
)

// ParseMarks decodes the stored string form. Short strings pad with unset;
// characters beyond Count are ignored (marks for capabilities this build no
// longer knows). Unknown characters read as unset.
func ParseMarks(s string) OverrideSet {
	var o OverrideSet
	for i, ch := range s {
		if i >= int(Count) {
			break
		}
		switch ch {
		case charGrant:
			o[i] = MarkGrant
		case charDeny:
			o[i] = MarkDeny
		}
	}
	return o
}

// String encodes the set for persistence, one character per capability.
func (o OverrideSet) String() string {
	b := make([]byte, Count)
	for i, m := range o {
		switch m {
		case MarkGrant:
			b[i] = charGrant
		case MarkDeny:
			b[i] = charDeny
		default:
			b[i] = charUnset
		}
	}
	return string(b)
}
