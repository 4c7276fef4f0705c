package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/Dias221467/closure-backend/internal/push"
	"github.com/Dias221467/closure-backend/internal/repository"
	"github.com/Dias221467/closure-backend/internal/services"
	"github.com/Dias221467/closure-backend/internal/trigger"
	jwtutil "github.com/Dias221467/closure-backend/pkg/jwt"
	"github.com/Dias221467/closure-backend/pkg/middleware"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (m *memUsers) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) SetPushToken(ctx context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	for other, holder := range m.users {
		if other != id && holder.FCMToken == token {
			return repository.ErrConflict
		}
	}
	u.FCMToken = token
	return nil
}

func (m *memUsers) token(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].FCMToken
}

type memNotifications struct {
	items map[string]models.Notification
}

func (m *memNotifications) GetUserNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	out := []models.Notification{}
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotifications) MarkAsRead(ctx context.Context, userID, id string) error {
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return repository.ErrNotFound
	}
	n.Read = true
	m.items[id] = n
	return nil
}

func (m *memNotifications) DeleteNotification(ctx context.Context, userID, id string) error {
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memNotifications) DeleteExpiredNotifications(ctx context.Context) (int64, error) {
	return 0, nil
}

type memObjects struct {
	mu       sync.Mutex
	objects  map[string][]byte
	meta     map[string]map[string]string
	failNext error
}

func (m *memObjects) Upload(ctx context.Context, name string, r io.Reader, contentType string, metadata map[string]string) error {
	if m.failNext != nil {
		return m.failNext
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	m.meta[name] = metadata
	return nil
}

func (m *memObjects) Open(ctx context.Context, name string) (*repository.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &repository.Object{
		ReadCloser:  io.NopCloser(bytes.NewReader(data)),
		Name:        name,
		ContentType: "image/png",
		Length:      int64(len(data)),
		UploadDate:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

type fixture struct {
	router        *mux.Router
	users         *memUsers
	notifications *memNotifications
	objects       *memObjects
	hub           *push.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := &memUsers{users: map[string]*models.User{
		"U1": {ID: "U1", Name: "Ana"},
		"U2": {ID: "U2", Name: "Ben"},
	}}
	notifications := &memNotifications{items: map[string]models.Notification{
		"N1": {ID: "N1", UserID: "U1", Type: models.NotificationCommentReply, Message: "hi"},
		"N2": {ID: "N2", UserID: "U2", Type: models.NotificationCommentReply, Message: "yo"},
	}}
	objects := &memObjects{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
	hub := push.NewHub()

	userService := services.NewUserService(users)
	objectService := services.NewObjectService(objects, secret, "profile_images")

	userHandler := NewUserHandler(userService, objectService)
	notificationHandler := NewNotificationHandler(services.NewNotificationService(notifications))
	objectHandler := NewObjectHandler(objectService)
	pushHandler := NewPushHandler(hub, userService, secret)

	router := mux.NewRouter()
	router.HandleFunc("/objects/{name:.+}", objectHandler.GetObjectHandler).Methods("GET")
	router.HandleFunc("/ws", pushHandler.PushWebSocketHandler).Methods("GET")

	protected := router.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(secret))
	protected.HandleFunc("/users/me/push-token", userHandler.RegisterPushTokenHandler).Methods("PUT")
	protected.HandleFunc("/users/{id}/avatar", userHandler.UploadAvatarHandler).Methods("POST")
	protected.HandleFunc("/notifications", notificationHandler.GetUserNotificationsHandler).Methods("GET")
	protected.HandleFunc("/notifications/{id}/read", notificationHandler.MarkAsReadHandler).Methods("POST")
	protected.HandleFunc("/notifications/{id}", notificationHandler.DeleteNotificationHandler).Methods("DELETE")

	return &fixture{router: router, users: users, notifications: notifications, objects: objects, hub: hub}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwtutil.GenerateToken(userID, secret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (f *fixture) do(t *testing.T, method, target, userID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if userID != "" {
		req.Header.Set("Authorization", bearer(t, userID))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGetUserNotificationsReturnsOnlyOwn(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/notifications", "U1", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Notification
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "N1", got[0].ID)
}

func TestNotificationRoutesRequireAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/notifications", "", nil, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMarkAsReadAndDelete(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/notifications/N1/read", "U1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.notifications.items["N1"].Read)

	// Another user's notification looks missing.
	rec = f.do(t, http.MethodPost, "/notifications/N2/read", "U1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/notifications/N1", "U1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, f.notifications.items, "N1")

	rec = f.do(t, http.MethodDelete, "/notifications/N1", "U1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterPushToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/users/me/push-token", "U1", strings.NewReader(`{"token":"tok-1"}`), "application/json")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "tok-1", f.users.token("U1"))

	rec = f.do(t, http.MethodPut, "/users/me/push-token", "U1", strings.NewReader(`{"token":""}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/me/push-token", "U1", strings.NewReader(`nope`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/me/push-token", "ghost", strings.NewReader(`{"token":"t"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/users/me/push-token", "U2", strings.NewReader(`{"token":"tok-1"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "tok-1", f.users.token("U1"))
	assert.Empty(t, f.users.token("U2"))
}

func multipartImage(t *testing.T, filename, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadAvatar(t *testing.T) {
	f := newFixture(t)
	body, ct := multipartImage(t, "me.png", "image/png", []byte("png-bytes"))

	rec := f.do(t, http.MethodPost, "/users/U1/avatar", "U1", body, ct)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	name := resp["object"]
	assert.True(t, strings.HasPrefix(name, "profile_images/U1/"))
	assert.Equal(t, []byte("png-bytes"), f.objects.objects[name])
	assert.Equal(t, map[string]string{"userId": "U1"}, f.objects.meta[name])
}

func TestUploadAvatarRejections(t *testing.T) {
	f := newFixture(t)

	body, ct := multipartImage(t, "me.png", "image/png", []byte("x"))
	rec := f.do(t, http.MethodPost, "/users/U2/avatar", "U1", body, ct)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body, ct = multipartImage(t, "cv.pdf", "application/pdf", []byte("x"))
	rec = f.do(t, http.MethodPost, "/users/U1/avatar", "U1", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/users/U1/avatar", "U1", strings.NewReader("plain"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.objects.failNext = errors.New("gridfs down")
	body, ct = multipartImage(t, "me.png", "image/png", []byte("x"))
	rec = f.do(t, http.MethodPost, "/users/U1/avatar", "U1", body, ct)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	assert.Empty(t, f.objects.objects)
}

func TestGetObjectWithSignedURL(t *testing.T) {
	f := newFixture(t)
	name := "profile_images/U1/resized/thumb_me.png"
	f.objects.objects[name] = []byte("thumb")
	token, err := jwtutil.SignObject(name, secret, time.Hour)
	require.NoError(t, err)

	url := repository.ObjectURL("", name, token)
	rec := f.do(t, http.MethodGet, url, "", nil, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "thumb", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))
}

func TestGetObjectRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	name := "profile_images/U1/resized/thumb_me.png"
	f.objects.objects[name] = []byte("thumb")
	other, err := jwtutil.SignObject("profile_images/U2/resized/thumb_x.png", secret, time.Hour)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/objects/"+name, "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, repository.ObjectURL("", name, other), "", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	missing := "profile_images/U1/gone.png"
	token, err := jwtutil.SignObject(missing, secret, time.Hour)
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, repository.ObjectURL("", missing, token), "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPushWebSocketRegistersDevice(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	token, err := jwtutil.GenerateToken("U2", secret, time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token + "&device=dev-1"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "dev-1", hello["device"])
	assert.Equal(t, "dev-1", f.users.token("U2"))

	require.Eventually(t, func() bool { return f.hub.Connected() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, f.hub.Send(context.Background(), push.Message{Token: "dev-1", Title: "Ana", Body: "hey"}))

	var got struct {
		Type    string `json:"type"`
		Message struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"message"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "push", got.Type)
	assert.Equal(t, "hey", got.Message.Body)
}

func TestPushWebSocketRejectsDeviceOfAnotherUser(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	owner, err := jwtutil.GenerateToken("U2", secret, time.Hour)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+owner+"&device=dev-2", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.hub.Connected() == 1 }, time.Second, 10*time.Millisecond)

	intruder, err := jwtutil.GenerateToken("U1", secret, time.Hour)
	require.NoError(t, err)
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+intruder+"&device=dev-2", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	assert.Equal(t, "dev-2", f.users.token("U2"))
	assert.Empty(t, f.users.token("U1"))
	assert.Equal(t, 1, f.hub.Connected())
}

func TestPushWebSocketRejectsBadToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/ws?token=nope", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/ws", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	reg := trigger.NewRegistry()
	reg.OnObjectFinalized("avatar-resize", "objects", func(ctx context.Context, ev trigger.ObjectEvent) error { return nil })

	rec := httptest.NewRecorder()
	NewHealthHandler(stubPinger{}, reg).HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status   string   `json:"status"`
		Triggers []string `json:"triggers"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Triggers, 1)

	rec = httptest.NewRecorder()
	NewHealthHandler(stubPinger{err: errors.New("down")}, nil).HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
