package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/auth"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// Handler upgrades client connections and drives join/leave commands.
type Handler struct {
	hub      *Hub
	chatRepo repositories.ChatRepository
	verifier *auth.Verifier
}

// NewHandler constructs a websocket Handler.
func NewHandler(hub *Hub, chatRepo repositories.ChatRepository, verifier *auth.Verifier) *Handler {
	return &Handler{hub: hub, chatRepo: chatRepo, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is what connected clients send: room membership commands.
type clientFrame struct {
	Action string `json:"action"`
	ChatID int    `json:"chat_id"`
}

// errorFrame is pushed back on a rejected command. Errors stay scoped to
// the offending connection.
type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Handle authenticates the handshake, upgrades the connection and serves
// membership commands until the peer goes away.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.verifier.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)
	h.hub.Register(client)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.emitConnEvent(ctx, info, "ws_connect", "")

	// The connection outlives this handler; detach from the request's cancel.
	go h.readLoop(context.WithoutCancel(ctx), client)
}

func (h *Handler) readLoop(ctx context.Context, client *Client) {
	conn := client.conn
	info := client.info

	var closeReason string
	defer func() {
		h.hub.Disconnect(client)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.emitConnEvent(ctx, info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.emitConnEvent(ctx, info, "ws_error", closeReason)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(client, "malformed frame")
			continue
		}

		switch frame.Action {
		case "join":
			member, err := h.chatRepo.IsParticipant(ctx, frame.ChatID, info.UserID)
			if err != nil || !member {
				h.sendError(client, "not authorized for chat")
				continue
			}
			h.hub.Join(client, frame.ChatID)
		case "leave":
			h.hub.Leave(client, frame.ChatID)
		default:
			h.sendError(client, "unknown action")
		}
	}
}

func (h *Handler) sendError(client *Client, msg string) {
	payload, _ := json.Marshal(errorFrame{Type: "error", Error: msg})
	_ = client.send(payload)
}

func (h *Handler) emitConnEvent(ctx context.Context, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, observability.WSEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
