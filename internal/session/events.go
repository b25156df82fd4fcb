package session

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Event is one item in a session's inbox. All cross-session effects arrive
// as events; no goroutine mutates another session's fields directly.
type Event interface{ sessionEvent() }

// InputEvent carries raw bytes from the connection's reader.
type InputEvent struct{ Data []byte }

// NoticeEvent is a one-line asynchronous notification.
type NoticeEvent struct{ Text string }

// PageOfferEvent tells the recipient another principal requests a pairing.
type PageOfferEvent struct {
	PairingID uuid.UUID
	From      string
}

// PairingStartedEvent tells a party its pairing became active. The receiving
// session snapshots its own (state, subState, mode) and enters chat.
type PairingStartedEvent struct {
	PairingID uuid.UUID
	With      string
}

// PairingEndedEvent tells a party its pairing left the live path (ended,
// declined, or timed out). Reason is the one user-facing line.
type PairingEndedEvent struct {
	PairingID uuid.UUID
	Reason    string
}

// ChatMessageEvent is one fanned-out chat line with its pairing sequence.
type ChatMessageEvent struct {
	PairingID uuid.UUID
	Seq       int64
	From      string
	Text      string
	At        time.Time
}

// disconnectEvent is posted by the reader when the transport closes.
type disconnectEvent struct{}

func (InputEvent) sessionEvent()          {}
func (NoticeEvent) sessionEvent()         {}
func (PageOfferEvent) sessionEvent()      {}
func (PairingStartedEvent) sessionEvent() {}
func (PairingEndedEvent) sessionEvent()   {}
func (ChatMessageEvent) sessionEvent()    {}
func (disconnectEvent) sessionEvent()     {}
