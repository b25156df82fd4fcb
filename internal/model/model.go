// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// LevelUnset is the sentinel for a principal whose authorization level has
// never been computed. Any level-gated check denies while it is unset.
const LevelUnset = -1

// MaxLevel is the top of the 0..255 authorization range; a principal at
// MaxLevel passes every level-gated check.
const MaxLevel = 255

// Principal is an account stored on the server.
type Principal struct {
	ID          uuid.UUID // PK
	Username    string    // unique
	PwdHash     []byte    // Argon2id(password, SaltAuth)
	SaltAuth    []byte    // per-user auth salt
	Level       int       // authorization level 0..255, LevelUnset until loaded
	DenialMarks string    // persisted encoding of per-capability deny-always marks
	NoPage      bool      // globally refuses page/chat requests
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// ChannelKey addresses one sub-channel within a channel (a topic area and a
// named partition inside it).
type ChannelKey struct {
	Channel string
	Sub     string
}

// ReadCursor is a per-(principal, channel) read position. Both fields are
// item numbers and only ever advance (monotonic max).
type ReadCursor struct {
	LastRead    int64 // highest item explicitly viewed
	LastScanned int64 // highest item counted by a new-item scan
}

// ChannelRange is the live numeric item range of one sub-channel.
// HighWatermark is exclusive: the next item id to be assigned.
// LowestUndeleted sits one below the oldest live item, like a read cursor,
// so a cursor clamped to it still reads that item.
type ChannelRange struct {
	Lowest          int64
	HighWatermark   int64
	LowestUndeleted int64
}

// Message is a single posted item in a sub-channel.
type Message struct {
	ChannelKey
	ItemID    int64
	Author    string
	Recipient string // empty for public posts
	Subject   string
	Private   bool
	Body      string
	Deleted   bool
	CreatedAt time.Time
}

// ResumeToken is an issued re-authentication token and its expiry.
type ResumeToken struct {
	Token     string
	ExpiresAt time.Time
}
