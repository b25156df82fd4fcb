// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., name taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)

// Pairing protocol sentinels. Protocol violations are returned to the caller
// and never change session state.
var (
	// ErrAlreadyPaired indicates the session is already party to a live pairing.
	ErrAlreadyPaired = errors.New("already paired")

	// ErrNotConnected indicates the target principal has no live session.
	ErrNotConnected = errors.New("not connected")

	// ErrPagingDisabled indicates the target has globally disabled page requests.
	ErrPagingDisabled = errors.New("paging disabled")

	// ErrPairingNotFound indicates an unknown pairing id.
	ErrPairingNotFound = errors.New("pairing not found")

	// ErrNotRecipient indicates the caller is not the pairing's intended recipient.
	ErrNotRecipient = errors.New("not the pairing recipient")

	// ErrPairingNotActive indicates an operation that requires an active pairing.
	ErrPairingNotActive = errors.New("pairing not active")

	// ErrEmptyMessage indicates an empty chat payload.
	ErrEmptyMessage = errors.New("empty message")

	// ErrMessageTooLong indicates an oversized chat payload.
	ErrMessageTooLong = errors.New("message too long")
)

// ErrBadCapability indicates an out-of-range capability index. This is a
// programming error at the call site, not user input.
var ErrBadCapability = errors.New("bad capability index")
