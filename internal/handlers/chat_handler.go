package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Dias221467/closure-backend/internal/services"
	"github.com/Dias221467/closure-backend/pkg/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type ChatHandler struct {
	Service *services.ChatService
}

func NewChatHandler(service *services.ChatService) *ChatHandler {
	return &ChatHandler{Service: service}
}

// POST /chats/{id}/messages
func (h *ChatHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Text     string `json:"text"`
		ImageURL string `json:"imageUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	chatID := mux.Vars(r)["id"]
	msg, err := h.Service.SendMessage(r.Context(), chatID, claims.UserID, req.Text, req.ImageURL)
	if err != nil {
		writeServiceError(w, err, "Failed to send message")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// GET /chats/{id}/messages?limit=
func (h *ChatHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	messages, err := h.Service.GetMessages(r.Context(), mux.Vars(r)["id"], claims.UserID, limit)
	if err != nil {
		writeServiceError(w, err, "Failed to get messages")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

// writeServiceError maps service errors onto status codes, logging only the
// unexpected ones.
func writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case services.IsNotFound(err):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrEmptyComment), errors.Is(err, services.ErrInvalidID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logrus.WithError(err).Error(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}
