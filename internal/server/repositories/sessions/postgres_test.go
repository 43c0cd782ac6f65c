package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passwords-you-take-anywhere/server/internal/common"
)

func newRepoFixture(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectExec(`INSERT INTO sessions \(user_id, token, expires_at\)`).
		WithArgs("u1", "token-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), "u1", "token-1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFind(t *testing.T) {
	repo, mock := newRepoFixture(t)
	expires := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT user_id, expires_at\s+FROM sessions\s+WHERE token = \$1`).
		WithArgs("token-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).AddRow("u1", expires))

	session, err := repo.Find(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "token-1", session.Token)
	assert.True(t, session.Expires.Equal(expires))
}

func TestFind_NotFound(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectQuery(`FROM sessions`).
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}))

	_, err := repo.Find(context.Background(), "unknown")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoFixture(t)

	mock.ExpectExec(`DELETE FROM sessions WHERE token = \$1`).
		WithArgs("token-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "token-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
