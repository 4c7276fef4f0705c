package reactors

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/Dias221467/closure-backend/internal/models"
	"github.com/Dias221467/closure-backend/internal/push"
	"github.com/Dias221467/closure-backend/internal/repository"
	"github.com/Dias221467/closure-backend/internal/trigger"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// memStore is an in-memory stand-in for the MongoDB repositories.
type memStore struct {
	mu            sync.Mutex
	posts         map[string]*models.Post
	chats         map[string]*models.Chat
	users         map[string]*models.User
	notifications []models.Notification
	markers       map[string]bool

	notifyErr error
	avatarErr error
	userErr   map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		posts:   make(map[string]*models.Post),
		chats:   make(map[string]*models.Chat),
		users:   make(map[string]*models.User),
		markers: make(map[string]bool),
		userErr: make(map[string]error),
	}
}

func (s *memStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifyErr != nil {
		return s.notifyErr
	}
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *memStore) IncrementCommentsCount(ctx context.Context, postID string, delta int, eventKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return repository.ErrNotFound
	}
	if eventKey != "" {
		if s.markers[eventKey] {
			return repository.ErrAlreadyApplied
		}
		s.markers[eventKey] = true
	}
	p.CommentsCount += delta
	return nil
}

func (s *memStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (s *memStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.userErr[id]; err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) SetAvatarURL(ctx context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.avatarErr != nil {
		return s.avatarErr
	}
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.AvatarURL = url
	return nil
}

func (s *memStore) commentsCount(postID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[postID].CommentsCount
}

type storedObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// memObjects is an in-memory object store. onFinalize, when set, is called after
// each upload the way the change stream would report it.
type memObjects struct {
	mu          sync.Mutex
	objects     map[string]storedObject
	uploads     []string
	downloadErr error
	onFinalize  func(ev trigger.ObjectEvent)
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string]storedObject)}
}

func (o *memObjects) put(name, contentType string, data []byte, metadata map[string]string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[name] = storedObject{data: data, contentType: contentType, metadata: metadata}
}

func (o *memObjects) get(name string) (storedObject, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	obj, ok := o.objects[name]
	return obj, ok
}

func (o *memObjects) Download(ctx context.Context, name string, w io.Writer) error {
	if o.downloadErr != nil {
		return o.downloadErr
	}
	obj, ok := o.get(name)
	if !ok {
		return repository.ErrNotFound
	}
	_, err := io.Copy(w, bytes.NewReader(obj.data))
	return err
}

func (o *memObjects) Upload(ctx context.Context, name string, r io.Reader, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.put(name, contentType, data, metadata)
	o.mu.Lock()
	o.uploads = append(o.uploads, name)
	hook := o.onFinalize
	o.mu.Unlock()

	if hook != nil {
		hook(trigger.ObjectEvent{Bucket: "objects", Name: name, ContentType: contentType, Metadata: metadata})
	}
	return nil
}

func (o *memObjects) SignedURL(name string) (string, error) {
	return "https://api.test/objects/" + name + "?token=signed", nil
}

func (o *memObjects) uploaded() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.uploads...)
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []push.Message
	failFor map[string]error
}

func (f *fakeSender) Send(ctx context.Context, msg push.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[msg.Token]; err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.Token)
	}
	return out
}

var errBoom = errors.New("boom")

func raw(t *testing.T, v interface{}) bson.Raw {
	t.Helper()
	b, err := bson.Marshal(v)
	require.NoError(t, err)
	return b
}

func commentCreated(t *testing.T, c models.Comment) trigger.DocumentEvent {
	return trigger.DocumentEvent{
		Change: trigger.Change{Path: "posts/" + c.PostID + "/comments/" + c.ID, After: raw(t, c)},
		Params: map[string]string{"postId": c.PostID, "commentId": c.ID},
	}
}
