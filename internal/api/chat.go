package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/erazemk/bazar/internal/assistant"
	"github.com/erazemk/bazar/internal/model"
	"github.com/erazemk/bazar/internal/store"
)

// ChatHandler serves the assistant chat. Assistant may be nil, in which case
// sessions can be browsed but no new message is answered.
type ChatHandler struct {
	DB        *sql.DB
	Assistant assistant.Completer
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

type chatReplyResponse struct {
	Reply   string             `json:"reply"`
	Session *model.ChatSession `json:"session"`
}

// Open handles POST /api/chat/sessions. It resumes the caller's active
// session (200) or starts a new one (201).
func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	session, created, err := store.OpenChatSession(r.Context(), h.DB, GetClaims(r.Context()).UserID, assistant.Greeting)
	if err != nil {
		storeError(w, r, err, "")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	jsonResponse(w, status, session)
}

// List handles GET /api/chat/sessions.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := store.ListChatSessions(r.Context(), h.DB, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "")
		return
	}
	if sessions == nil {
		sessions = []model.ChatSession{}
	}
	jsonResponse(w, http.StatusOK, sessions)
}

// Get handles GET /api/chat/sessions/{id}.
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := store.GetChatSession(r.Context(), h.DB, id, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "session not found")
		return
	}
	jsonResponse(w, http.StatusOK, session)
}

// Send handles POST /api/chat/sessions/{id}/messages. The exchange is stored
// only once the assistant has answered.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if err := model.ValidateChatMessage(message); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.Assistant == nil {
		jsonError(w, http.StatusServiceUnavailable, "chat assistant is not configured")
		return
	}

	session, err := store.GetChatSession(r.Context(), h.DB, id, claims.UserID)
	if err != nil {
		storeError(w, r, err, "session not found")
		return
	}
	if !session.Active {
		jsonError(w, http.StatusBadRequest, store.ErrChatSessionClosed.Error())
		return
	}

	history := append(session.Messages, model.ChatMessage{Role: model.ChatRoleUser, Content: message})
	reply, err := h.Assistant.Complete(r.Context(), history)
	if err != nil {
		slog.ErrorContext(r.Context(), "assistant completion failed",
			"session", id,
			"user", claims.UserID,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		jsonError(w, http.StatusBadGateway, "failed to get assistant response")
		return
	}

	session, err = store.AppendChatExchange(r.Context(), h.DB, id, claims.UserID, message, reply)
	if err != nil {
		storeError(w, r, err, "session not found")
		return
	}
	jsonResponse(w, http.StatusOK, chatReplyResponse{Reply: reply, Session: session})
}

// Close handles POST /api/chat/sessions/{id}/close.
func (h *ChatHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := store.CloseChatSession(r.Context(), h.DB, id, GetClaims(r.Context()).UserID)
	if err != nil {
		storeError(w, r, err, "session not found")
		return
	}
	slog.InfoContext(r.Context(), "chat session closed", "session", id, "user", session.UserID)
	jsonResponse(w, http.StatusOK, session)
}
