package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/evharlow/astrid/internal/auth"
	"github.com/evharlow/astrid/internal/model"
	"github.com/evharlow/astrid/internal/store"
)

type MessageHandler struct {
	messages *store.MessageStore
	logger   *slog.Logger
}

func NewMessageHandler(ms *store.MessageStore, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{messages: ms, logger: logger}
}

// List returns the caller's conversation history. The route sits behind the
// chat-analysis consent gate.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list messages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type createMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	msg, err := h.messages.Create(r.Context(), auth.UserID(r.Context()), "user", req.Content)
	if err != nil {
		h.logger.Error("create message", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
