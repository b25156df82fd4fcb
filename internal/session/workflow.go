package session

import (
	"errors"

	"github.com/gofrs/uuid/v5"
)

// Workflow carries transition-scoped data between the sub-states of one
// multi-step workflow. It is a closed sum: each handler asserts its own
// variant and treats a mismatch as ErrWorkflowMismatch, which the dispatcher
// recovers from like an unmapped sub-state.
type Workflow interface{ workflow() }

// ErrWorkflowMismatch indicates a handler found workflow data of the wrong
// variant. That is a wiring defect, recovered by falling back to the menu.
var ErrWorkflowMismatch = errors.New("workflow data mismatch")

// LoginWorkflow accumulates the authentication dialogue.
type LoginWorkflow struct {
	Name        string
	Registering bool
}

// ComposeWorkflow accumulates a message under composition.
type ComposeWorkflow struct {
	To      string
	Subject string
	Private bool
	Body    []string
}

// JoinWorkflow accumulates a channel/sub-channel selection.
type JoinWorkflow struct {
	Channel string
}

// ReadWorkflow remembers the item currently on screen at the read prompt.
type ReadWorkflow struct {
	ItemID int64
	Author string
}

// PageWorkflow marks the page-target prompt.
type PageWorkflow struct{}

// ChatWorkflow marks a session participating in a live pairing.
type ChatWorkflow struct {
	PairingID uuid.UUID
}

func (LoginWorkflow) workflow()   {}
func (ComposeWorkflow) workflow() {}
func (ReadWorkflow) workflow()    {}
func (JoinWorkflow) workflow()    {}
func (PageWorkflow) workflow()    {}
func (ChatWorkflow) workflow()    {}
