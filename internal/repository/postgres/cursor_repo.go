package postgres

import (
	"context"
	"errors"

	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// CursorRepo implements CursorRepository using PostgreSQL.
type CursorRepo struct{ db *DB }

// NewCursorRepo constructs a cursor repository.
func NewCursorRepo(db *DB) *CursorRepo { return &CursorRepo{db: db} }

// LoadCursor selects the stored read cursor for (principal, channel).
func (r *CursorRepo) LoadCursor(ctx context.Context, principal uuid.UUID, ch model.ChannelKey) (model.ReadCursor, error) {
	const q = `
SELECT last_read, last_scanned FROM read_cursors
WHERE principal_id=$1 AND channel=$2 AND sub_channel=$3`
	var c model.ReadCursor
	err := r.db.Pool.QueryRow(ctx, q, principal, ch.Channel, ch.Sub).Scan(&c.LastRead, &c.LastScanned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ReadCursor{}, errs.ErrNotFound
		}
		return model.ReadCursor{}, err
	}
	return c, nil
}

// SaveCursor upserts a cursor. GREATEST keeps each field a monotonic max so
// writes racing out of order cannot regress a position.
func (r *CursorRepo) SaveCursor(ctx context.Context, principal uuid.UUID, ch model.ChannelKey, c model.ReadCursor) error {
	const q = `
INSERT INTO read_cursors (principal_id, channel, sub_channel, last_read, last_scanned, updated_at)
VALUES ($1,$2,$3,$4,$5,now())
ON CONFLICT (principal_id, channel, sub_channel) DO UPDATE
SET last_read=GREATEST(read_cursors.last_read, EXCLUDED.last_read),
    last_scanned=GREATEST(read_cursors.last_scanned, EXCLUDED.last_scanned),
    updated_at=now()`
	_, err := r.db.Pool.Exec(ctx, q, principal, ch.Channel, ch.Sub, c.LastRead, c.LastScanned)
	return err
}

// LoadRange selects the stored range for a sub-channel.
func (r *CursorRepo) LoadRange(ctx context.Context, ch model.ChannelKey) (model.ChannelRange, error) {
	const q = `
SELECT lowest, high_watermark, lowest_undeleted FROM channel_ranges
WHERE channel=$1 AND sub_channel=$2`
	var rng model.ChannelRange
	err := r.db.Pool.QueryRow(ctx, q, ch.Channel, ch.Sub).Scan(&rng.Lowest, &rng.HighWatermark, &rng.LowestUndeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ChannelRange{}, errs.ErrNotFound
		}
		return model.ChannelRange{}, err
	}
	return rng, nil
}

// ListChannels selects every known sub-channel in stable order.
func (r *CursorRepo) ListChannels(ctx context.Context) ([]model.ChannelKey, error) {
	const q = `SELECT channel, sub_channel FROM channel_ranges ORDER BY channel, sub_channel`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChannelKey
	for rows.Next() {
		var ch model.ChannelKey
		if err := rows.Scan(&ch.Channel, &ch.Sub); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SaveRange upserts a channel range.
func (r *CursorRepo) SaveRange(ctx context.Context, ch model.ChannelKey, rng model.ChannelRange) error {
	const q = `
INSERT INTO channel_ranges (channel, sub_channel, lowest, high_watermark, lowest_undeleted)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (channel, sub_channel) DO UPDATE
SET lowest=EXCLUDED.lowest,
    high_watermark=EXCLUDED.high_watermark,
    lowest_undeleted=EXCLUDED.lowest_undeleted`
	_, err := r.db.Pool.Exec(ctx, q, ch.Channel, ch.Sub, rng.Lowest, rng.HighWatermark, rng.LowestUndeleted)
	return err
}
