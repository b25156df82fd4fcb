package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/crosstalk-io/crosstalk/internal/ledger"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/crosstalk-io/crosstalk/internal/repository"
)

// MaxSubjectLen bounds a message subject line.
const MaxSubjectLen = 72

// MaxBodyLines bounds a composed message body.
const MaxBodyLines = 200

// BoardService defines operations over channel messages.
type BoardService interface {
	// Post stores a composed message, allocating its item number from the
	// channel watermark.
	Post(ctx context.Context, m *model.Message) (int64, error)
	// ReadNext returns the next unread item for the principal and advances
	// the manual-read cursor.
	ReadNext(ctx context.Context, principal uuid.UUID, username string, ch model.ChannelKey) (*model.Message, error)
	// Scan advances the scan cursor to the channel's watermark and reports
	// whether anything new was counted.
	Scan(ctx context.Context, principal uuid.UUID, ch model.ChannelKey) (bool, error)
	// ChannelsWithUnseen reports which sub-channels hold items the
	// principal's scan position has not covered yet.
	ChannelsWithUnseen(ctx context.Context, principal uuid.UUID) ([]model.ChannelKey, error)
	// Kill tombstones a message. Ownership is checked by the caller, which
	// already holds the displayed item.
	Kill(ctx context.Context, ch model.ChannelKey, itemID int64) error
}

type BoardServiceImpl struct {
	repo repository.BoardRepository
	lgr  *ledger.Service
}

// NewBoardService constructs BoardService over the board repository and the
// read-position ledger.
func NewBoardService(repo repository.BoardRepository, lgr *ledger.Service) *BoardServiceImpl {
	return &BoardServiceImpl{repo: repo, lgr: lgr}
}

// Post validates and stores a message.
func (s *BoardServiceImpl) Post(ctx context.Context, m *model.Message) (int64, error) {
	if m.Author == "" {
		return 0, errors.New("validation: empty author")
	}
	if m.Channel == "" || m.Sub == "" {
		return 0, errors.New("validation: empty channel")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return 0, errors.New("validation: empty subject")
	}
	if len(m.Subject) > MaxSubjectLen {
		return 0, fmt.Errorf("validation: subject too long (%d > %d)", len(m.Subject), MaxSubjectLen)
	}
	if m.Private && m.Recipient == "" {
		return 0, errors.New("validation: private message without recipient")
	}
	return s.repo.Post(ctx, m)
}

// ReadNext fetches the first visible item past the manual-read cursor and
// advances it. Returns errs.ErrNotFound when the principal is caught up.
func (s *BoardServiceImpl) ReadNext(ctx context.Context, principal uuid.UUID, username string, ch model.ChannelKey) (*model.Message, error) {
	c := s.lgr.LoadCursor(ctx, principal, ch)
	m, err := s.repo.GetNext(ctx, ch, c.LastRead, username)
	if err != nil {
		return nil, err
	}
	s.lgr.AdvanceManualRead(ctx, principal, ch, m.ItemID)
	return m, nil
}

// ChannelsWithUnseen walks every known sub-channel and keeps the ones whose
// watermark is past the principal's scan position.
func (s *BoardServiceImpl) ChannelsWithUnseen(ctx context.Context, principal uuid.UUID) ([]model.ChannelKey, error) {
	chans, err := s.lgr.Channels(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.ChannelKey
	for _, ch := range chans {
		unseen, err := s.lgr.HasUnseen(ctx, principal, ch)
		if err != nil {
			return nil, err
		}
		if unseen {
			out = append(out, ch)
		}
	}
	return out, nil
}

// Kill tombstones an item and lets the repository refresh the channel's
// lowest-undeleted bound.
func (s *BoardServiceImpl) Kill(ctx context.Context, ch model.ChannelKey, itemID int64) error {
	return s.repo.Delete(ctx, ch, itemID)
}

// Scan counts everything up to the watermark as seen.
func (s *BoardServiceImpl) Scan(ctx context.Context, principal uuid.UUID, ch model.ChannelKey) (bool, error) {
	unseen, err := s.lgr.HasUnseen(ctx, principal, ch)
	if err != nil {
		return false, err
	}
	r, err := s.lgr.GetRange(ctx, ch)
	if err != nil {
		return false, err
	}
	s.lgr.AdvanceScan(ctx, principal, ch, r.HighWatermark)
	return unseen, nil
}
