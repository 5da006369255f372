// Package ws exposes the chat gateway over a WebSocket.
//
// Each inbound text frame is one chat request and gets exactly one reply
// frame; replies are not streamed.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/smartspark/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Handler upgrades connections and relays frames to the chat service.
type Handler struct {
	chatSvc  *chatService.Service
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a WebSocket handler. allowOrigin decides cross-origin upgrades;
// nil accepts every origin.
func New(chatSvc *chatService.Service, allowOrigin func(origin string) bool, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		log:     log.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin == nil || allowOrigin(origin)
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// InboundMessage is one chat request frame.
type InboundMessage struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// OutboundMessage is the reply frame; Error is set instead of Response on failure.
type OutboundMessage struct {
	Response       string `json:"response,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, conn)

	// The connection remembers the conversation so clients may omit the id after the first frame.
	var conversationID string
	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read failed", zap.Error(err))
			}
			return
		}

		if msg.ConversationID != "" {
			conversationID = msg.ConversationID
		}

		reply, err := h.chatSvc.Chat(ctx, msg.Message, conversationID)
		// A failed exchange may still have created the conversation.
		if reply.ConversationID != "" {
			conversationID = reply.ConversationID
		}

		var out OutboundMessage
		switch {
		case errors.Is(err, chatService.ErrEmptyMessage):
			out = OutboundMessage{ConversationID: conversationID, Error: err.Error()}
		case err != nil:
			h.log.Error("chat failed", zap.String("conversation_id", conversationID), zap.Error(err))
			out = OutboundMessage{ConversationID: conversationID, Error: "Error processing chat: " + err.Error()}
		default:
			out = OutboundMessage{Response: reply.Response, ConversationID: reply.ConversationID}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(out); err != nil {
			h.log.Warn("write failed", zap.Error(err))
			return
		}
		// A slow completion must not eat into the next read.
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
