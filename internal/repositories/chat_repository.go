package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrSelfChat     = errors.New("cannot create chat with self")
)

const chatColumns = `id, user1_id, user2_id, last_message, last_message_time, last_message_type, unread1, unread2, created_at`

// ChatRepository abstracts chat persistence. It is the only writer of
// unread counters and last-message snapshots, together with MessageRepository.
type ChatRepository interface {
	CreateOrGetChat(ctx context.Context, userID int, recipientID int) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID int, userID int) (bool, error)
	ListChats(ctx context.Context, userID int) ([]models.Chat, error)
	MarkRead(ctx context.Context, chatID int, userID int) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateOrGetChat creates the chat for the unordered pair {userID,
// recipientID}, or returns the existing one. Participants are stored sorted,
// so (A,B) and (B,A) resolve to the same row; two callers racing to create
// the same pair are arbitrated by the unique index and both observe one chat.
func (r *ChatRepo) CreateOrGetChat(ctx context.Context, userID int, recipientID int) (models.Chat, error) {
	if userID == recipientID {
		return models.Chat{}, ErrSelfChat
	}
	participants := []int{userID, recipientID}
	sort.Ints(participants)
	user1, user2 := participants[0], participants[1]

	var chat models.Chat
	insert := `INSERT INTO chats (user1_id, user2_id) VALUES ($1, $2)
        ON CONFLICT (user1_id, user2_id) DO NOTHING
        RETURNING ` + chatColumns
	err := r.db.GetContext(ctx, &chat, insert, user1, user2)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	// Conflict: the pair already has a chat, possibly created concurrently.
	query := `SELECT ` + chatColumns + ` FROM chats WHERE user1_id=$1 AND user2_id=$2`
	if err := r.db.GetContext(ctx, &chat, query, user1, user2); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`, chatID, userID)
	return exists, err
}

// ListChats returns the user's chats, most recently active first. Chats
// without any message yet sort last.
func (r *ChatRepo) ListChats(ctx context.Context, userID int) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats
        WHERE user1_id=$1 OR user2_id=$1
        ORDER BY last_message_time DESC NULLS LAST, id DESC`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID)
	return chats, err
}

// MarkRead zeroes the user's unread slot and acknowledges the peer's
// messages, as one transaction. Idempotent.
func (r *ChatRepo) MarkRead(ctx context.Context, chatID int, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE chats SET
            unread1 = CASE WHEN user1_id=$2 THEN 0 ELSE unread1 END,
            unread2 = CASE WHEN user2_id=$2 THEN 0 ELSE unread2 END
        WHERE id=$1`, chatID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}

	if _, err := tx.ExecContext(ctx, `UPDATE messages SET read = TRUE
        WHERE chat_id=$1 AND sender_id<>$2 AND read = FALSE`, chatID, userID); err != nil {
		return err
	}

	return tx.Commit()
}
