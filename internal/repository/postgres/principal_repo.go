package postgres

import (
	"context"
	"errors"

	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PrincipalRepo implements PrincipalRepository using PostgreSQL.
type PrincipalRepo struct{ db *DB }

// NewPrincipalRepo constructs a principal repository.
func NewPrincipalRepo(db *DB) *PrincipalRepo { return &PrincipalRepo{db: db} }

const principalCols = `id, username, pwd_hash, salt_auth, level, denial_marks, no_page, created_at, last_seen_at`

// Create inserts a new principal row.
func (r *PrincipalRepo) Create(ctx context.Context, p *model.Principal) error {
	const q = `
INSERT INTO principals (id, username, pwd_hash, salt_auth, level, denial_marks, no_page)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, p.ID, p.Username, p.PwdHash, p.SaltAuth, p.Level, p.DenialMarks, p.NoPage)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

func (r *PrincipalRepo) scanOne(row pgx.Row) (*model.Principal, error) {
	var p model.Principal
	err := row.Scan(&p.ID, &p.Username, &p.PwdHash, &p.SaltAuth, &p.Level,
		&p.DenialMarks, &p.NoPage, &p.CreatedAt, &p.LastSeenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByID selects a principal by ID.
func (r *PrincipalRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Principal, error) {
	const q = `SELECT ` + principalCols + ` FROM principals WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects a principal by username.
func (r *PrincipalRepo) GetByUsername(ctx context.Context, username string) (*model.Principal, error) {
	const q = `SELECT ` + principalCols + ` FROM principals WHERE username=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, username))
}

// LoadAuthLevel returns the stored authorization level.
func (r *PrincipalRepo) LoadAuthLevel(ctx context.Context, id uuid.UUID) (int, error) {
	const q = `SELECT level FROM principals WHERE id=$1`
	var level int
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&level); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LevelUnset, errs.ErrNotFound
		}
		return model.LevelUnset, err
	}
	return level, nil
}

// SetDenialMarks replaces the persisted deny-always marks.
func (r *PrincipalRepo) SetDenialMarks(ctx context.Context, id uuid.UUID, marks string) error {
	const q = `UPDATE principals SET denial_marks=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, marks)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// TouchLastSeen records the most recent connection time.
func (r *PrincipalRepo) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE principals SET last_seen_at=now() WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}
