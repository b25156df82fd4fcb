package repository

import (
	"context"

	"github.com/crosstalk-io/crosstalk/internal/model"
)

// BoardRepository persists posted messages and allocates their item numbers.
type BoardRepository interface {
	// Post inserts a message, allocating its item id from the channel range's
	// high watermark and raising the watermark to id+1 in the same
	// transaction. Returns the allocated id.
	Post(ctx context.Context, m *model.Message) (int64, error)

	// GetNext returns the first undeleted item with id > afterID, or
	// errs.ErrNotFound when the caller is caught up. Private messages are
	// only returned to their author or recipient (forUser).
	GetNext(ctx context.Context, ch model.ChannelKey, afterID int64, forUser string) (*model.Message, error)

	// Delete tombstones an item and, when it was the lowest undeleted item,
	// advances the range's lowest_undeleted bound.
	Delete(ctx context.Context, ch model.ChannelKey, itemID int64) error
}
