package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/identity"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/ws"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/chats", handler.ListChats)
	r.POST("/chats", handler.CreateChat)
	r.PUT("/chats/:chat_id/read", handler.MarkRead)
	return r
}

func TestListChatsSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	identityClient := new(mocks.IdentityClientMock)
	handler := NewChatHandler(chatRepo, identityClient, ws.NewHub(), nil)
	router := setupChatRouter(handler)

	lastTime := time.Now()
	chatRepo.On("ListChats", mock.Anything, 1).Return([]models.Chat{{
		ID:              3,
		User1ID:         1,
		User2ID:         2,
		LastMessage:     sql.NullString{String: "hi", Valid: true},
		LastMessageTime: sql.NullTime{Time: lastTime, Valid: true},
		LastMessageType: models.TypeText,
		Unread1:         4,
	}}, nil).Once()
	identityClient.On("BulkUsers", mock.Anything, []int{2}).
		Return([]identity.User{{ID: 2, DisplayName: "bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Chats, 1)
	assert.Equal(t, 3, resp.Chats[0].ChatID)
	assert.Equal(t, "bob", resp.Chats[0].RecipientName)
	assert.Equal(t, 4, resp.Chats[0].Unread)
	assert.Equal(t, "hi", resp.Chats[0].LastMessage)

	chatRepo.AssertExpectations(t)
	identityClient.AssertExpectations(t)
}

func TestListChatsDropsUnknownRecipients(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	identityClient := new(mocks.IdentityClientMock)
	handler := NewChatHandler(chatRepo, identityClient, ws.NewHub(), nil)
	router := setupChatRouter(handler)

	chatRepo.On("ListChats", mock.Anything, 1).
		Return([]models.Chat{{ID: 3, User1ID: 1, User2ID: 2}}, nil).Once()
	identityClient.On("BulkUsers", mock.Anything, []int{2}).
		Return([]identity.User{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Chats)
}

func TestListChatsRepoError(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(chatRepo, new(mocks.IdentityClientMock), ws.NewHub(), nil)
	router := setupChatRouter(handler)

	chatRepo.On("ListChats", mock.Anything, 1).Return(([]models.Chat)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestCreateChatSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	identityClient := new(mocks.IdentityClientMock)
	handler := NewChatHandler(chatRepo, identityClient, ws.NewHub(), nil)
	router := setupChatRouter(handler)

	identityClient.On("GetUser", mock.Anything, 2).Return(identity.User{ID: 2, DisplayName: "bob"}, nil).Once()
	chatRepo.On("CreateOrGetChat", mock.Anything, 1, 2).Return(models.Chat{ID: 10, User1ID: 1, User2ID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats", bytes.NewBufferString(`{"recipient_id":2}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 10, resp["id"])

	identityClient.AssertExpectations(t)
	chatRepo.AssertExpectations(t)
}

func TestCreateChatRecipientUnknown(t *testing.T) {
	identityClient := new(mocks.IdentityClientMock)
	handler := NewChatHandler(new(mocks.ChatRepositoryMock), identityClient, ws.NewHub(), nil)
	router := setupChatRouter(handler)

	identityClient.On("GetUser", mock.Anything, 5).Return(identity.User{}, identity.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats", bytes.NewBufferString(`{"recipient_id":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	identityClient.AssertExpectations(t)
}

func TestCreateChatMissingRecipient(t *testing.T) {
	handler := NewChatHandler(new(mocks.ChatRepositoryMock), new(mocks.IdentityClientMock), ws.NewHub(), nil)
	router := setupChatRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/chats", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateChatWithSelf(t *testing.T) {
	handler := NewChatHandler(new(mocks.ChatRepositoryMock), new(mocks.IdentityClientMock), ws.NewHub(), nil)
	router := setupChatRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/chats", bytes.NewBufferString(`{"recipient_id":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkReadSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(chatRepo, new(mocks.IdentityClientMock), ws.NewHub(), nil)
	router := setupChatRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5, User1ID: 1, User2ID: 2}, nil).Once()
	chatRepo.On("MarkRead", mock.Anything, 5, 1).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/chats/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestMarkReadStorageErrorDetail(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(chatRepo, new(mocks.IdentityClientMock), ws.NewHub(), nil)
	router := setupChatRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{}, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPut, "/chats/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// A storage failure is not a missing chat; detail must say so.
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "failed to load chat", resp["error"])
}

func TestMarkReadForbidden(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	handler := NewChatHandler(chatRepo, new(mocks.IdentityClientMock), ws.NewHub(), nil)
	router := setupChatRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 5).Return(models.Chat{ID: 5, User1ID: 2, User2ID: 3}, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/chats/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertExpectations(t)
}
