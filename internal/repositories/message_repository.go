package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, chat_id, sender_id, content, type, thumbnail, read, deleted, created_at`

// AppendParams describes a message append. IdempotencyKey is optional; when
// set, a retried append with the same key returns the original message
// instead of creating a duplicate.
type AppendParams struct {
	Chat           models.Chat
	SenderID       int
	Content        string
	Type           models.MessageType
	Thumbnail      string
	IdempotencyKey string
}

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, p AppendParams) (models.Message, bool, error)
	ListMessages(ctx context.Context, chatID int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, messageID int) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage inserts the message, overwrites the chat's last-message
// snapshot and increments the recipient's unread slot, all in one
// transaction: either all three apply or none do. The unread increment runs
// SQL-side so concurrent sends to the same chat never lose counts. The
// returned bool is false when an idempotency key replay matched an earlier
// append; in that case the stored original is returned untouched.
func (r *MessageRepo) AppendMessage(ctx context.Context, p AppendParams) (models.Message, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, false, err
	}
	defer tx.Rollback()

	var msg models.Message
	insert := `INSERT INTO messages (chat_id, sender_id, content, type, thumbnail, idempotency_key)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (chat_id, idempotency_key) DO NOTHING
        RETURNING ` + messageColumns
	err = tx.QueryRowxContext(ctx, insert,
		p.Chat.ID, p.SenderID, p.Content, p.Type, p.Thumbnail, nullableKey(p.IdempotencyKey)).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		// Replay of an already-committed append. Nothing was inserted, so
		// the snapshot and counter updates must not run again either.
		var existing models.Message
		query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id=$1 AND idempotency_key=$2`
		if err := r.db.GetContext(ctx, &existing, query, p.Chat.ID, p.IdempotencyKey); err != nil {
			return models.Message{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return models.Message{}, false, err
	}

	recipientID := p.Chat.OtherParticipant(p.SenderID)
	if _, err := tx.ExecContext(ctx, `UPDATE chats SET
            last_message = $2,
            last_message_time = $3,
            last_message_type = $4,
            unread1 = unread1 + CASE WHEN user1_id = $5 THEN 1 ELSE 0 END,
            unread2 = unread2 + CASE WHEN user2_id = $5 THEN 1 ELSE 0 END
        WHERE id = $1`,
		p.Chat.ID, snapshotText(p.Content, p.Type), msg.Timestamp, p.Type, recipientID); err != nil {
		return models.Message{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, false, err
	}
	return msg, true, nil
}

// ListMessages returns the chat's messages newest first. Soft-deleted
// messages stay in the result as tombstones.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id=$1 ORDER BY created_at DESC, id DESC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, chatID)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage marks a message deleted. The tombstone remains stored.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// snapshotText is what the chat list shows for the latest message.
func snapshotText(content string, typ models.MessageType) string {
	if typ == models.TypeText {
		return content
	}
	return fmt.Sprintf("Sent a %s", typ)
}

func nullableKey(key string) sql.NullString {
	return sql.NullString{String: key, Valid: key != ""}
}
