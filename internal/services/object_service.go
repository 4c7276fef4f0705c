package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Dias221467/closure-backend/internal/repository"
	jwtutil "github.com/Dias221467/closure-backend/pkg/jwt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrUnsupportedImage = errors.New("only JPEG, PNG and GIF images are allowed")
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

type ObjectStore interface {
	Upload(ctx context.Context, name string, r io.Reader, contentType string, metadata map[string]string) error
	Open(ctx context.Context, name string) (*repository.Object, error)
}

// ObjectService guards uploads into and reads out of the object store.
type ObjectService struct {
	store         ObjectStore
	secret        string
	profilePrefix string
}

func NewObjectService(store ObjectStore, secret, profilePrefix string) *ObjectService {
	return &ObjectService{store: store, secret: secret, profilePrefix: profilePrefix}
}

// UploadAvatar stores an original profile image at <prefix>/<userID>/<uuid><ext>
// tagged with the owner, and returns the object name. The thumbnail and the
// avatarUrl update happen in the finalize reactor.
func (s *ObjectService) UploadAvatar(ctx context.Context, userID, filename, contentType string, r io.Reader) (string, error) {
	defaultExt, ok := allowedImageTypes[contentType]
	if !ok {
		return "", ErrUnsupportedImage
	}
	if userID == "" || strings.Contains(userID, "/") {
		return "", ErrInvalidID
	}

	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = defaultExt
	}
	name := path.Join(s.profilePrefix, userID, uuid.NewString()+ext)

	if err := s.store.Upload(ctx, name, r, contentType, map[string]string{"userId": userID}); err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}

	logrus.WithFields(logrus.Fields{"userID": userID, "object": name}).Info("Avatar original uploaded")
	return name, nil
}

// OpenSigned opens name if token is a valid read token for exactly that object.
func (s *ObjectService) OpenSigned(ctx context.Context, name, token string) (*repository.Object, error) {
	claims, err := jwtutil.ValidateObjectToken(token, s.secret)
	if err != nil {
		return nil, ErrForbidden
	}
	if claims.Object != name {
		logrus.WithFields(logrus.Fields{"object": name, "granted": claims.Object}).Warn("Object token used for another object")
		return nil, ErrForbidden
	}
	return s.store.Open(ctx, name)
}
