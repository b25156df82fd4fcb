package postgres

import (
	"context"
	"errors"

	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/jackc/pgx/v5"
)

// BoardRepo implements BoardRepository using PostgreSQL.
type BoardRepo struct{ db *DB }

// NewBoardRepo constructs a board repository.
func NewBoardRepo(db *DB) *BoardRepo { return &BoardRepo{db: db} }

// Post allocates the next item id from the channel range and inserts the
// message in one transaction, so new-item detection by watermark never sees
// a raised watermark without its message or vice versa.
func (r *BoardRepo) Post(ctx context.Context, m *model.Message) (id int64, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ensure = `
INSERT INTO channel_ranges (channel, sub_channel, lowest, high_watermark, lowest_undeleted)
VALUES ($1,$2,1,1,0)
ON CONFLICT (channel, sub_channel) DO NOTHING`
	if _, err = tx.Exec(ctx, ensure, m.Channel, m.Sub); err != nil {
		return 0, err
	}

	const sel = `SELECT high_watermark FROM channel_ranges WHERE channel=$1 AND sub_channel=$2 FOR UPDATE`
	if err = tx.QueryRow(ctx, sel, m.Channel, m.Sub).Scan(&id); err != nil {
		return 0, err
	}

	const ins = `
INSERT INTO messages (channel, sub_channel, item_id, author, recipient, subject, private, body, deleted)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false)`
	if _, err = tx.Exec(ctx, ins, m.Channel, m.Sub, id, m.Author, m.Recipient, m.Subject, m.Private, m.Body); err != nil {
		return 0, err
	}

	const bump = `UPDATE channel_ranges SET high_watermark=$3 WHERE channel=$1 AND sub_channel=$2`
	if _, err = tx.Exec(ctx, bump, m.Channel, m.Sub, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

// GetNext returns the first undeleted item after afterID that forUser may
// see. Private items are visible only to their author and recipient.
func (r *BoardRepo) GetNext(ctx context.Context, ch model.ChannelKey, afterID int64, forUser string) (*model.Message, error) {
	const q = `
SELECT channel, sub_channel, item_id, author, recipient, subject, private, body, deleted, created_at
FROM messages
WHERE channel=$1 AND sub_channel=$2 AND item_id>$3 AND NOT deleted
  AND (NOT private OR author=$4 OR recipient=$4)
ORDER BY item_id ASC
LIMIT 1`
	row := r.db.Pool.QueryRow(ctx, q, ch.Channel, ch.Sub, afterID, forUser)
	var m model.Message
	err := row.Scan(&m.Channel, &m.Sub, &m.ItemID, &m.Author, &m.Recipient,
		&m.Subject, &m.Private, &m.Body, &m.Deleted, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Delete tombstones an item and refreshes the range's lowest undeleted bound.
func (r *BoardRepo) Delete(ctx context.Context, ch model.ChannelKey, itemID int64) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const upd = `UPDATE messages SET deleted=true WHERE channel=$1 AND sub_channel=$2 AND item_id=$3`
	tag, err := tx.Exec(ctx, upd, ch.Channel, ch.Sub, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}

	// The bound sits one below the oldest live item, same as a read cursor,
	// so a cursor clamped to it still picks that item up. With nothing live
	// it collapses to one below the watermark.
	const refresh = `
UPDATE channel_ranges SET lowest_undeleted=COALESCE(
  (SELECT MIN(item_id)-1 FROM messages WHERE channel=$1 AND sub_channel=$2 AND NOT deleted),
  high_watermark-1)
WHERE channel=$1 AND sub_channel=$2`
	_, err = tx.Exec(ctx, refresh, ch.Channel, ch.Sub)
	return err
}
