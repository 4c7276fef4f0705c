package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dias221467/closure-backend/internal/services"
	"github.com/Dias221467/closure-backend/pkg/middleware"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const maxAvatarSize = 10 << 20

// UserHandler handles HTTP requests related to user profiles.
type UserHandler struct {
	Service *services.UserService
	Objects *services.ObjectService
}

// NewUserHandler creates a new instance of UserHandler.
func NewUserHandler(service *services.UserService, objects *services.ObjectService) *UserHandler {
	return &UserHandler{
		Service: service,
		Objects: objects,
	}
}

// UploadAvatarHandler stores a new profile image for the caller. The avatar URL
// is updated asynchronously once the thumbnail exists.
func (h *UserHandler) UploadAvatarHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID := mux.Vars(r)["id"]
	if userID != claims.UserID {
		log.WithFields(log.Fields{"userID": claims.UserID, "target": userID}).Warn("Avatar upload for another user rejected")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize+1<<20)
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		http.Error(w, "File too big or invalid format", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file in request", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name, err := h.Objects.UploadAvatar(r.Context(), userID, header.Filename, header.Header.Get("Content-Type"), file)
	if errors.Is(err, services.ErrUnsupportedImage) || errors.Is(err, services.ErrInvalidID) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.WithError(err).WithField("userID", userID).Error("Failed to upload avatar")
		http.Error(w, "Failed to upload avatar", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Avatar uploaded, thumbnail is being generated",
		"object":  name,
	})
}

// RegisterPushTokenHandler stores the caller's device token for chat pushes.
func (h *UserHandler) RegisterPushTokenHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.WithError(err).Warn("Failed to decode push token request")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	err := h.Service.RegisterPushToken(r.Context(), claims.UserID, req.Token)
	switch {
	case errors.Is(err, services.ErrEmptyPushToken):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, services.ErrPushTokenTaken):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case services.IsNotFound(err):
		http.Error(w, "User not found", http.StatusNotFound)
		return
	case err != nil:
		log.WithError(err).WithField("userID", claims.UserID).Error("Failed to register push token")
		http.Error(w, "Failed to register push token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
