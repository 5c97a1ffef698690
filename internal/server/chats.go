package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sheetsage/sheetsage/internal/chatstore"
	"github.com/sheetsage/sheetsage/internal/history"
	"github.com/sheetsage/sheetsage/internal/log"
)

// ChatHandler serves chat listing and transcript endpoints.
type ChatHandler struct {
	store   *chatstore.Store
	history *history.Store
	logger  log.Logger
}

// NewChatHandler creates a chat handler. history may be nil.
func NewChatHandler(store *chatstore.Store, hist *history.Store, logger log.Logger) *ChatHandler {
	return &ChatHandler{store: store, history: hist, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/chats", h.list)
	mux.HandleFunc("GET /api/chats/{id}", h.get)
	mux.HandleFunc("PATCH /api/chats/{id}", h.rename)
	mux.HandleFunc("PATCH /api/chats/{id}/system-prompt", h.setSystemPrompt)
	mux.HandleFunc("DELETE /api/chats/{id}", h.delete)
	mux.HandleFunc("GET /api/chats/{id}/messages", h.messages)
}

// chatJSON is the wire form of one chat.
type chatJSON struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	DatasetID    *int64    `json:"dataset_id,omitempty"`
	SystemPrompt *string   `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int64     `json:"message_count"`
}

func toChatJSON(c *chatstore.Chat) chatJSON {
	return chatJSON{
		ID:           c.ID,
		Title:        c.Title,
		DatasetID:    c.DatasetID,
		SystemPrompt: c.SystemPrompt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: c.MessageCount,
	}
}

// messageJSON is the wire form of one message.
type messageJSON struct {
	ID        int64          `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (h *ChatHandler) list(w http.ResponseWriter, r *http.Request) {
	chats, err := h.store.List(r.Context(), 0)
	if err != nil {
		h.logger.Error("listing chats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list chats")
		return
	}
	out := make([]chatJSON, len(chats))
	for i := range chats {
		out[i] = toChatJSON(&chats[i])
	}
	writeJSON(w, http.StatusOK, struct {
		Chats []chatJSON `json:"chats"`
	}{out})
}

func (h *ChatHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}
	c, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatJSON(c))
}

func (h *ChatHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "a non-empty title is required")
		return
	}
	if err := h.store.UpdateTitle(r.Context(), id, body.Title); err != nil {
		h.respondStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setSystemPrompt stores the chat's custom instructions; an empty prompt
// clears them.
func (h *ChatHandler) setSystemPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}
	var body struct {
		SystemPrompt string `json:"system_prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "a JSON body with system_prompt is required")
		return
	}
	if err := h.store.UpdateSystemPrompt(r.Context(), id, body.SystemPrompt); err != nil {
		h.respondStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// delete removes the chat, its messages, and its conversation history.
func (h *ChatHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.respondStoreError(w, id, err)
		return
	}
	if h.history != nil {
		if err := h.history.Clear(r.Context(), id); err != nil {
			h.logger.Warn("clearing chat history failed", "chat_id", id, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.chatID(w, r)
	if !ok {
		return
	}
	if _, err := h.store.Get(r.Context(), id); err != nil {
		h.respondStoreError(w, id, err)
		return
	}
	msgs, err := h.store.Messages(r.Context(), id, 0)
	if err != nil {
		h.logger.Error("listing messages failed", "chat_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list messages")
		return
	}
	out := make([]messageJSON, len(msgs))
	for i, m := range msgs {
		out[i] = messageJSON{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Messages []messageJSON `json:"messages"`
	}{out})
}

func (h *ChatHandler) chatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "chat id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *ChatHandler) respondStoreError(w http.ResponseWriter, id int64, err error) {
	if errors.Is(err, chatstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("chat %d not found", id))
		return
	}
	h.logger.Error("chat store error", "chat_id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "store_error", "chat store failure")
}
