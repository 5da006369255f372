package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/smartspark/backend/internal/service/chat"
	"github.com/zhouzirui/smartspark/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	log     *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, log: log.Named("http.chat")}
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatErrorResponse is the failure body of POST /api/chat. ConversationID is
// set when the failed exchange already stored the user turn.
type ChatErrorResponse struct {
	Detail         string `json:"detail"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/conversations", h.handleListConversations)
	r.Get("/conversations/{conversationID}", h.handleGetConversation)
	r.Delete("/conversations/{conversationID}", h.handleDeleteConversation)
}

// handleChat 处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload ChatRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.chatSvc.Chat(r.Context(), payload.Message, payload.ConversationID)
	if err != nil {
		if errors.Is(err, chatService.ErrEmptyMessage) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("chat failed", zap.String("conversation_id", reply.ConversationID), zap.Error(err))
		utils.RespondJSON(w, http.StatusInternalServerError, ChatErrorResponse{
			Detail:         "Error processing chat: " + err.Error(),
			ConversationID: reply.ConversationID,
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleGetConversation 返回单个会话
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	conv, err := h.chatSvc.GetConversation(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "Error retrieving conversation")
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv)
}

// handleListConversations 按更新时间倒序列出会话
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chatSvc.ListConversations(r.Context())
	if err != nil {
		h.respondStoreError(w, err, "Error retrieving conversations")
		return
	}
	utils.RespondJSON(w, http.StatusOK, convs)
}

// handleDeleteConversation 删除会话
func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	if err := h.chatSvc.DeleteConversation(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "Error deleting conversation")
		return
	}
	utils.RespondJSON(w, http.StatusOK, utils.MessageResponse{Message: "Conversation deleted successfully"})
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error, prefix string) {
	if errors.Is(err, chatService.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	h.log.Error(prefix, zap.Error(err))
	utils.RespondError(w, http.StatusInternalServerError, prefix+": "+err.Error())
}
