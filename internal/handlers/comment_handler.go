package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Dias221467/closure-backend/internal/services"
	"github.com/Dias221467/closure-backend/pkg/middleware"
	"github.com/gorilla/mux"
)

type CommentHandler struct {
	Service *services.CommentService
}

func NewCommentHandler(service *services.CommentService) *CommentHandler {
	return &CommentHandler{Service: service}
}

// POST /posts/{id}/comments
func (h *CommentHandler) AddCommentHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	comment, err := h.Service.AddComment(r.Context(), mux.Vars(r)["id"], claims.UserID, req.Text)
	if err != nil {
		writeServiceError(w, err, "Failed to add comment")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(comment)
}

// GET /posts/{id}/comments
func (h *CommentHandler) GetCommentsHandler(w http.ResponseWriter, r *http.Request) {
	comments, err := h.Service.GetComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err, "Failed to get comments")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(comments)
}

// DELETE /posts/{id}/comments/{commentId}
func (h *CommentHandler) DeleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	if err := h.Service.DeleteComment(r.Context(), vars["id"], vars["commentId"], claims.UserID); err != nil {
		writeServiceError(w, err, "Failed to delete comment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
