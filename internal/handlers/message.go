package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/media"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

// maxMediaBytes caps uploaded attachments at 50MB.
const maxMediaBytes = 50 << 20

// MessageHandler manages message history, sends and soft deletes. Message
// appends are the transactional core: the insert, the chat snapshot and the
// recipient's unread counter commit together, and websocket fan-out happens
// strictly after the commit.
type MessageHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	mediaStore  media.Store
	hub         *ws.Hub
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, mediaStore media.Store, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		mediaStore:  mediaStore,
		hub:         hub,
		audit:       audit,
	}
}

// GetMessages returns a chat's messages, newest first. Soft-deleted
// messages come back as tombstones with deleted=true.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		}
		return
	}
	if !chat.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage appends a text message.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req struct {
		ChatID      int    `json:"chat_id" binding:"required"`
		Content     string `json:"content" binding:"required"`
		RecipientID int    `json:"recipient_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}

	h.appendMessage(c, req.ChatID, req.RecipientID, req.Content, models.TypeText, "")
}

// PostMediaMessage appends an image or video message. The uploaded bytes go
// to the media store; the message records only the returned reference.
func (h *MessageHandler) PostMediaMessage(c *gin.Context) {
	chatID, err := strconv.Atoi(c.PostForm("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}
	recipientID, err := strconv.Atoi(c.PostForm("recipient_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}

	msgType := models.MessageType(c.PostForm("type"))
	if !models.ValidMediaType(msgType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media type"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	if fileHeader.Size > maxMediaBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxMediaBytes))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}

	contentRef, err := h.mediaStore.Store(c.Request.Context(), data, fileHeader.Header.Get("Content-Type"), fileHeader.Filename)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "media upload failed"})
		return
	}

	h.appendMessage(c, chatID, recipientID, contentRef, msgType, c.PostForm("thumbnail"))
}

// appendMessage is the shared transactional send path for text and media.
func (h *MessageHandler) appendMessage(c *gin.Context, chatID, recipientID int, content string, msgType models.MessageType, thumbnail string) {
	userID := c.GetInt("userID")

	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		}
		return
	}
	if !chat.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}
	if recipientID != chat.OtherParticipant(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient is not the other chat member"})
		return
	}

	msg, created, err := h.messageRepo.AppendMessage(c.Request.Context(), repositories.AppendParams{
		Chat:           chat,
		SenderID:       userID,
		Content:        content,
		Type:           msgType,
		Thumbnail:      thumbnail,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if !created {
		// Idempotency key replay: the original append already committed and
		// was already fanned out.
		c.JSON(http.StatusOK, msg)
		return
	}

	observability.IncMessageAppended(string(msgType))
	h.emitAudit(c, "INFO", fmt.Sprintf("message %d appended to chat %d", msg.ID, chat.ID))

	// Fan-out only after the commit: joined clients never see a message
	// they cannot fetch back from history.
	h.hub.PublishMessage(msg)
	h.hub.PublishChatUpdated(chat.ID, chat.User1ID, chat.User2ID)

	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage soft-deletes a message. The tombstone stays in storage and
// in history responses.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		}
		return
	}

	chat, err := h.chatRepo.GetChat(c.Request.Context(), msg.ChatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !chat.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	if err := h.messageRepo.SoftDeleteMessage(c.Request.Context(), messageID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		return
	}

	h.emitAudit(c, "INFO", fmt.Sprintf("message %d deleted in chat %d", messageID, chat.ID))
	h.hub.PublishMessageDeleted(chat.ID, messageID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
