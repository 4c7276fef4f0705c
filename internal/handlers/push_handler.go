package handlers

import (
	"errors"
	"net/http"

	"github.com/Dias221467/closure-backend/internal/push"
	"github.com/Dias221467/closure-backend/internal/services"
	jwtutil "github.com/Dias221467/closure-backend/pkg/jwt"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PushHandler lets devices without FCM receive chat pushes over a websocket.
type PushHandler struct {
	Hub       *push.Hub
	Users     *services.UserService
	JWTSecret string
}

func NewPushHandler(hub *push.Hub, users *services.UserService, jwtSecret string) *PushHandler {
	return &PushHandler{Hub: hub, Users: users, JWTSecret: jwtSecret}
}

// GET /ws?token=&device=
// The device id becomes the user's push token; a random one is issued when absent.
func (h *PushHandler) PushWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}
	claims, err := jwtutil.ValidateToken(token, h.JWTSecret)
	if err != nil {
		logrus.WithError(err).Debug("WebSocket auth failed")
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	device := r.URL.Query().Get("device")
	if device == "" {
		device = uuid.NewString()
	}

	if err := h.Users.RegisterPushToken(r.Context(), claims.UserID, device); err != nil {
		if services.IsNotFound(err) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, services.ErrPushTokenTaken) {
			http.Error(w, "Device registered to another user", http.StatusConflict)
			return
		}
		logrus.WithError(err).WithField("userID", claims.UserID).Error("Failed to register websocket device")
		http.Error(w, "Failed to register device", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	if err := conn.WriteJSON(map[string]string{"type": "registered", "device": device}); err != nil {
		conn.Close()
		return
	}

	if err := h.Hub.Serve(conn, device, claims.UserID); err != nil {
		logrus.WithError(err).WithField("userID", claims.UserID).Warn("WebSocket device refused")
	}
}
