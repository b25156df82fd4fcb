// Package limiter throttles failed logins per (username, caller address).
package limiter

import (
	"context"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt may proceed and, when blocked,
	// how long until the lock expires.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt; reports whether a block was placed.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}
