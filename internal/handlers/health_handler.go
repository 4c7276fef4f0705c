package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Dias221467/closure-backend/internal/trigger"
	"github.com/sirupsen/logrus"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and lists the registered trigger routes.
type HealthHandler struct {
	DB       Pinger
	Registry *trigger.Registry
}

func NewHealthHandler(db Pinger, registry *trigger.Registry) *HealthHandler {
	return &HealthHandler{DB: db, Registry: registry}
}

// GET /healthz
func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	resp := map[string]interface{}{"status": "ok"}
	if err := h.DB.Ping(ctx); err != nil {
		logrus.WithError(err).Warn("Health check failed")
		status = http.StatusServiceUnavailable
		resp["status"] = "degraded"
	}
	if h.Registry != nil {
		resp["triggers"] = h.Registry.Routes()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
