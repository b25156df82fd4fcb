// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PrincipalRepository provides CRUD access for accounts.
type PrincipalRepository interface {
	// Create inserts a new principal.
	Create(ctx context.Context, p *model.Principal) error
	// GetByID loads a principal by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Principal, error)
	// GetByUsername loads a principal by username.
	GetByUsername(ctx context.Context, username string) (*model.Principal, error)
	// LoadAuthLevel returns the stored authorization level for a principal.
	LoadAuthLevel(ctx context.Context, id uuid.UUID) (int, error)
	// SetDenialMarks replaces the persisted deny-always marks.
	SetDenialMarks(ctx context.Context, id uuid.UUID, marks string) error
	// TouchLastSeen records the most recent connection time.
	TouchLastSeen(ctx context.Context, id uuid.UUID) error
}
