package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func chatRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user1_id", "user2_id", "last_message", "last_message_time",
		"last_message_type", "unread1", "unread2", "created_at",
	})
}

func TestCreateOrGetChatSortsPair(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	// Caller order (7,3) must hit the database as the sorted pair (3,7).
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chats (user1_id, user2_id) VALUES ($1, $2)`)).
		WithArgs(3, 7).
		WillReturnRows(chatRows().AddRow(1, 3, 7, nil, nil, "none", 0, 0, time.Now()))

	chat, err := repo.CreateOrGetChat(context.Background(), 7, 3)
	require.NoError(t, err)
	require.Equal(t, 1, chat.ID)
	require.Equal(t, 3, chat.User1ID)
	require.Equal(t, 7, chat.User2ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetChatReturnsExistingOnConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	// ON CONFLICT DO NOTHING yields no row; the existing chat is reselected.
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chats`)).
		WithArgs(1, 2).
		WillReturnRows(chatRows())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user1_id, user2_id, last_message, last_message_time, last_message_type, unread1, unread2, created_at FROM chats WHERE user1_id=$1 AND user2_id=$2`)).
		WithArgs(1, 2).
		WillReturnRows(chatRows().AddRow(42, 1, 2, "hi", time.Now(), "text", 1, 0, time.Now()))

	chat, err := repo.CreateOrGetChat(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Equal(t, 42, chat.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetChatRejectsSelf(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewChatRepo(db)

	_, err := repo.CreateOrGetChat(context.Background(), 5, 5)
	require.ErrorIs(t, err, ErrSelfChat)
}

func TestGetChatNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM chats WHERE id=$1`)).
		WithArgs(99).
		WillReturnRows(chatRows())

	_, err := repo.GetChat(context.Background(), 99)
	require.ErrorIs(t, err, ErrChatNotFound)
}

func TestMarkReadZeroesSlotAndAcksMessages(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chats SET`)).
		WithArgs(5, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE messages SET read = TRUE`)).
		WithArgs(5, 2).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkRead(context.Background(), 5, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadUnknownChatRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE chats SET`)).
		WithArgs(99, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.MarkRead(context.Background(), 99, 2)
	require.ErrorIs(t, err, ErrChatNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
