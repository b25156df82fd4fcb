package repository

import (
	"context"

	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CursorRepository persists read positions and channel ranges.
type CursorRepository interface {
	// LoadCursor returns the stored cursor, or errs.ErrNotFound if none exists.
	LoadCursor(ctx context.Context, principal uuid.UUID, ch model.ChannelKey) (model.ReadCursor, error)

	// SaveCursor upserts a cursor. The write is a monotonic max: a stored
	// field never regresses even if saves land out of order.
	SaveCursor(ctx context.Context, principal uuid.UUID, ch model.ChannelKey, c model.ReadCursor) error

	// LoadRange returns the stored range, or errs.ErrNotFound if none exists.
	LoadRange(ctx context.Context, ch model.ChannelKey) (model.ChannelRange, error)

	// SaveRange upserts a channel range.
	SaveRange(ctx context.Context, ch model.ChannelKey, r model.ChannelRange) error

	// ListChannels returns every sub-channel that has a range row.
	ListChannels(ctx context.Context) ([]model.ChannelKey, error)
}
