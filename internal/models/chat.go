package models

import (
	"database/sql"
	"time"
)

// MessageType enumerates what kind of content a message carries.
type MessageType string

const (
	TypeNone  MessageType = "none"
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVideo MessageType = "video"
)

// ValidMediaType reports whether t is an uploadable media type.
func ValidMediaType(t MessageType) bool {
	return t == TypeImage || t == TypeVideo
}

// Chat represents a private chat between exactly two users. Participants
// are stored sorted (User1ID < User2ID) so each pair maps to one row, and
// the unread counters are two fixed slots keyed by participant position.
type Chat struct {
	ID              int            `db:"id" json:"id"`
	User1ID         int            `db:"user1_id" json:"user1_id"`
	User2ID         int            `db:"user2_id" json:"user2_id"`
	LastMessage     sql.NullString `db:"last_message" json:"-"`
	LastMessageTime sql.NullTime   `db:"last_message_time" json:"-"`
	LastMessageType MessageType    `db:"last_message_type" json:"last_message_type"`
	Unread1         int            `db:"unread1" json:"-"`
	Unread2         int            `db:"unread2" json:"-"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether userID is one of the two chat members.
func (c Chat) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the peer of userID in the chat.
func (c Chat) OtherParticipant(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// UnreadFor returns the unread counter slot belonging to userID.
func (c Chat) UnreadFor(userID int) int {
	if c.User1ID == userID {
		return c.Unread1
	}
	return c.Unread2
}

// ChatSummary is the per-user view of a chat returned by the list endpoint.
// Recipient fields are resolved from the identity directory at read time.
type ChatSummary struct {
	ChatID          int         `json:"id"`
	RecipientID     int         `json:"recipient_id"`
	RecipientName   string      `json:"recipient_name"`
	RecipientPhoto  string      `json:"recipient_photo,omitempty"`
	LastMessage     string      `json:"last_message,omitempty"`
	LastMessageTime *time.Time  `json:"last_message_time,omitempty"`
	LastMessageType MessageType `json:"last_message_type"`
	Unread          int         `json:"unread"`
	CreatedAt       time.Time   `json:"created_at"`
}
