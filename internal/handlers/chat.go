package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/identity"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

// ChatHandler manages the chat list and read-state endpoints.
type ChatHandler struct {
	chatRepo repositories.ChatRepository
	identity identity.Client
	hub      *ws.Hub
	audit    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, identityClient identity.Client, hub *ws.Hub, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo: chatRepo,
		identity: identityClient,
		hub:      hub,
		audit:    audit,
	}
}

// ListChats returns the authenticated user's chats, most recently active
// first. Recipient name and photo come from the identity directory at read
// time, so directory updates are reflected immediately.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chatRepo.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	recipientIDs := make([]int, 0, len(chats))
	for _, chat := range chats {
		recipientIDs = append(recipientIDs, chat.OtherParticipant(userID))
	}

	users, err := h.identity.BulkUsers(c.Request.Context(), recipientIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}
	userByID := map[int]identity.User{}
	for _, u := range users {
		userByID[u.ID] = u
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		recipientID := chat.OtherParticipant(userID)
		recipient, ok := userByID[recipientID]
		if !ok {
			// Recipient vanished from the directory; drop the chat from the list.
			continue
		}

		summary := models.ChatSummary{
			ChatID:          chat.ID,
			RecipientID:     recipientID,
			RecipientName:   recipient.DisplayName,
			RecipientPhoto:  recipient.PhotoURL,
			LastMessageType: chat.LastMessageType,
			Unread:          chat.UnreadFor(userID),
			CreatedAt:       chat.CreatedAt,
		}
		if chat.LastMessage.Valid {
			summary.LastMessage = chat.LastMessage.String
		}
		if chat.LastMessageTime.Valid {
			t := chat.LastMessageTime.Time
			summary.LastMessageTime = &t
		}
		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// CreateChat creates or returns the existing chat with the recipient.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req struct {
		RecipientID int `json:"recipient_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient_id is required"})
		return
	}

	userID := c.GetInt("userID")
	if userID == req.RecipientID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	if _, err := h.identity.GetUser(c.Request.Context(), req.RecipientID); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to resolve recipient"})
		return
	}

	chat, err := h.chatRepo.CreateOrGetChat(c.Request.Context(), userID, req.RecipientID)
	if err != nil {
		if errors.Is(err, repositories.ErrSelfChat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	h.emitAudit(c, "INFO", fmt.Sprintf("chat %d ready for users %d and %d", chat.ID, chat.User1ID, chat.User2ID))
	c.JSON(http.StatusOK, gin.H{"id": chat.ID})
}

// MarkRead zeroes the caller's unread counter for the chat. Idempotent.
func (h *ChatHandler) MarkRead(c *gin.Context) {
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

	if err := h.chatRepo.MarkRead(c.Request.Context(), chatID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark chat read"})
		return
	}

	h.hub.PublishChatUpdated(chat.ID, chat.User1ID, chat.User2ID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
