package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/crosstalk-io/crosstalk/internal/errs"
	"github.com/crosstalk-io/crosstalk/internal/model"
)

func principalRows(p *model.Principal) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "username", "pwd_hash", "salt_auth", "level",
		"denial_marks", "no_page", "created_at", "last_seen_at",
	}).AddRow(p.ID, p.Username, p.PwdHash, p.SaltAuth, p.Level,
		p.DenialMarks, p.NoPage, p.CreatedAt, p.LastSeenAt)
}

func TestPrincipalRepo_Create_Unique(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPrincipalRepo(db)

	p := &model.Principal{ID: uuid.Must(uuid.NewV4()), Username: "alice", Level: 20}
	mock.ExpectExec(`INSERT INTO principals`).
		WithArgs(p.ID, p.Username, p.PwdHash, p.SaltAuth, p.Level, p.DenialMarks, p.NoPage).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), p))
}

func TestPrincipalRepo_GetByUsername_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPrincipalRepo(db)

	p := &model.Principal{
		ID: uuid.Must(uuid.NewV4()), Username: "bob", Level: 30,
		CreatedAt: time.Now(), LastSeenAt: time.Now(),
	}
	mock.ExpectQuery(`FROM principals WHERE username=\$1`).
		WithArgs("bob").
		WillReturnRows(principalRows(p))

	got, err := r.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, 30, got.Level)
}

func TestPrincipalRepo_GetByUsername_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPrincipalRepo(db)

	mock.ExpectQuery(`FROM principals WHERE username=\$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.GetByUsername(context.Background(), "ghost")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPrincipalRepo_LoadAuthLevel(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPrincipalRepo(db)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`SELECT level FROM principals`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"level"}).AddRow(42))

	lvl, err := r.LoadAuthLevel(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 42, lvl)

	mock.ExpectQuery(`SELECT level FROM principals`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	lvl, err = r.LoadAuthLevel(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Equal(t, model.LevelUnset, lvl)
}

func TestPrincipalRepo_SetDenialMarks(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPrincipalRepo(db)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectExec(`UPDATE principals SET denial_marks=\$2`).
		WithArgs(id, "??D").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetDenialMarks(context.Background(), id, "??D"))

	mock.ExpectExec(`UPDATE principals SET denial_marks=\$2`).
		WithArgs(id, "??D").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.SetDenialMarks(context.Background(), id, "??D"), errs.ErrNotFound)
}
