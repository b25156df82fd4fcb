// Package ledger tracks per-principal, per-channel read positions.
//
// Positions only ever advance (monotonic max), so replayed or out-of-order
// updates are harmless. New-item detection compares the scan position with
// the channel range's high watermark, never wall-clock time.
package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/crosstalk-io/crosstalk/internal/repository"
)

type cursorKey struct {
	principal uuid.UUID
	ch        model.ChannelKey
}

// Service is the read-position ledger. In-memory values are authoritative
// for a live session; persistence failures mark the cursor dirty and Flush
// retries them rather than dropping the write.
type Service struct {
	repo repository.CursorRepository
	log  *zap.Logger

	mu      sync.Mutex
	cursors map[cursorKey]model.ReadCursor
	dirty   map[cursorKey]struct{}
}

// NewService constructs the ledger over a cursor repository.
func NewService(repo repository.CursorRepository, log *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		log:     log,
		cursors: make(map[cursorKey]model.ReadCursor),
		dirty:   make(map[cursorKey]struct{}),
	}
}

// GetRange loads a sub-channel's live range, lazily defaulting an untouched
// channel to {lowest 1, highWatermark 1, lowestUndeleted 0}.
func (s *Service) GetRange(ctx context.Context, ch model.ChannelKey) (model.ChannelRange, error) {
	r, err := s.repo.LoadRange(ctx, ch)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.ChannelRange{Lowest: 1, HighWatermark: 1, LowestUndeleted: 0}, nil
		}
		return model.ChannelRange{}, err
	}
	return r, nil
}

// LoadCursor returns the validated cursor for (principal, channel), lazily
// creating a zeroed one. A failed persistence read logs and continues with
// the zero cursor; the session is never blocked on it.
func (s *Service) LoadCursor(ctx context.Context, principal uuid.UUID, ch model.ChannelKey) model.ReadCursor {
	k := cursorKey{principal: principal, ch: ch}

	s.mu.Lock()
	c, ok := s.cursors[k]
	s.mu.Unlock()
	if ok {
		return c
	}

	c, err := s.repo.LoadCursor(ctx, principal, ch)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		s.log.Warn("cursor load failed, starting from zero",
			zap.String("principal", principal.String()),
			zap.String("channel", ch.Channel),
			zap.String("sub", ch.Sub),
			zap.Error(err),
		)
		c = model.ReadCursor{}
	}

	if r, rerr := s.GetRange(ctx, ch); rerr == nil {
		c = s.Validate(c, r)
	}

	s.mu.Lock()
	s.cursors[k] = c
	s.mu.Unlock()
	return c
}

// Validate clamps both cursor fields into [lowestUndeleted, highWatermark].
// An out-of-bound value resets to lowestUndeleted ("we don't know, start
// from the oldest live item") and logs the violation; a cursor above the
// watermark is a consistency bug, not a deleted item, so it is clamped and
// reported, never deleted. Validating an already-valid cursor is a no-op.
func (s *Service) Validate(c model.ReadCursor, r model.ChannelRange) model.ReadCursor {
	clamp := func(v int64, field string) int64 {
		if v < r.LowestUndeleted || v > r.HighWatermark {
			s.log.Warn("read cursor out of range, clamping",
				zap.String("field", field),
				zap.Int64("value", v),
				zap.Int64("lowestUndeleted", r.LowestUndeleted),
				zap.Int64("highWatermark", r.HighWatermark),
			)
			return r.LowestUndeleted
		}
		return v
	}
	c.LastRead = clamp(c.LastRead, "lastRead")
	c.LastScanned = clamp(c.LastScanned, "lastScanned")
	return c
}

// AdvanceManualRead records that the principal explicitly viewed itemID.
func (s *Service) AdvanceManualRead(ctx context.Context, principal uuid.UUID, ch model.ChannelKey, itemID int64) {
	s.advance(ctx, principal, ch, itemID, true)
}

// AdvanceScan records that a new-item scan counted up to itemID.
func (s *Service) AdvanceScan(ctx context.Context, principal uuid.UUID, ch model.ChannelKey, itemID int64) {
	s.advance(ctx, principal, ch, itemID, false)
}

func (s *Service) advance(ctx context.Context, principal uuid.UUID, ch model.ChannelKey, itemID int64, manual bool) {
	k := cursorKey{principal: principal, ch: ch}

	s.mu.Lock()
	c := s.cursors[k]
	if manual {
		if itemID > c.LastRead {
			c.LastRead = itemID
		}
	} else {
		if itemID > c.LastScanned {
			c.LastScanned = itemID
		}
	}
	s.cursors[k] = c
	s.mu.Unlock()

	if err := s.repo.SaveCursor(ctx, principal, ch, c); err != nil {
		s.mu.Lock()
		s.dirty[k] = struct{}{}
		s.mu.Unlock()
		s.log.Warn("cursor save failed, deferred",
			zap.String("principal", principal.String()),
			zap.String("channel", ch.Channel),
			zap.Error(err),
		)
	}
}

// HasUnseen reports whether the channel holds items the scan position has
// not covered yet.
func (s *Service) HasUnseen(ctx context.Context, principal uuid.UUID, ch model.ChannelKey) (bool, error) {
	r, err := s.GetRange(ctx, ch)
	if err != nil {
		return false, err
	}
	c := s.LoadCursor(ctx, principal, ch)
	return c.LastScanned < r.HighWatermark, nil
}

// Channels lists every sub-channel known to the store.
func (s *Service) Channels(ctx context.Context) ([]model.ChannelKey, error) {
	return s.repo.ListChannels(ctx)
}

// Flush retries every deferred cursor save. Still-failing saves stay dirty.
func (s *Service) Flush(ctx context.Context) {
	s.mu.Lock()
	pending := make(map[cursorKey]model.ReadCursor, len(s.dirty))
	for k := range s.dirty {
		pending[k] = s.cursors[k]
	}
	s.mu.Unlock()

	for k, c := range pending {
		if err := s.repo.SaveCursor(ctx, k.principal, k.ch, c); err != nil {
			s.log.Warn("cursor flush retry failed",
				zap.String("principal", k.principal.String()),
				zap.String("channel", k.ch.Channel),
				zap.Error(err),
			)
			continue
		}
		s.mu.Lock()
		delete(s.dirty, k)
		s.mu.Unlock()
	}
}

// Forget drops the in-memory cursor cache for a principal after its last
// dirty write is flushed (called when the owning session disconnects).
func (s *Service) Forget(principal uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.cursors {
		if k.principal == principal {
			if _, stillDirty := s.dirty[k]; !stillDirty {
				delete(s.cursors, k)
			}
		}
	}
}
