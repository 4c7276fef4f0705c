package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Dias221467/closure-backend/internal/services"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ObjectHandler serves stored objects to holders of a signed URL.
type ObjectHandler struct {
	Service *services.ObjectService
}

func NewObjectHandler(service *services.ObjectService) *ObjectHandler {
	return &ObjectHandler{Service: service}
}

// GET /objects/{name}?token=
func (h *ObjectHandler) GetObjectHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	obj, err := h.Service.OpenSigned(r.Context(), name, token)
	switch {
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case services.IsNotFound(err):
		http.Error(w, "Object not found", http.StatusNotFound)
		return
	case err != nil:
		logrus.WithError(err).WithField("object", name).Error("Failed to open object")
		http.Error(w, "Failed to read object", http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.Length > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Length, 10))
	}
	if !obj.UploadDate.IsZero() {
		w.Header().Set("Last-Modified", obj.UploadDate.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")

	if _, err := io.Copy(w, obj); err != nil {
		logrus.WithError(err).WithField("object", name).Warn("Object stream interrupted")
	}
}
