package models

import "time"

// Message represents a chat message. Media messages carry an opaque
// content reference produced by the media store, never raw bytes.
type Message struct {
	ID        int         `db:"id" json:"id"`
	ChatID    int         `db:"chat_id" json:"chat_id"`
	SenderID  int         `db:"sender_id" json:"sender_id"`
	Content   string      `db:"content" json:"content"`
	Type      MessageType `db:"type" json:"type"`
	Thumbnail string      `db:"thumbnail" json:"thumbnail,omitempty"`
	Read      bool        `db:"read" json:"read"`
	Deleted   bool        `db:"deleted" json:"deleted"`
	Timestamp time.Time   `db:"created_at" json:"timestamp"`
}

// Event types pushed over websocket connections.
const (
	EventMessage        = "message"
	EventChatUpdated    = "chat_updated"
	EventMessageDeleted = "message_deleted"
)

// ChatEvent is broadcasted through websockets.
type ChatEvent struct {
	Type      string   `json:"type"`
	Message   *Message `json:"message,omitempty"`
	ChatID    int      `json:"chat_id,omitempty"`
	MessageID int      `json:"message_id,omitempty"`
}
