package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	jwtutil "github.com/Dias221467/closure-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ObjectStore keeps uploaded files in a GridFS bucket. The object path is the
// GridFS filename; content type and custom metadata live in the file's metadata.
type ObjectStore struct {
	db         *mongo.Database
	bucketName string
	baseURL    string
	secret     string
	urlTTL     time.Duration
}

func NewObjectStore(db *mongo.Database, bucketName, baseURL, secret string, urlTTL time.Duration) *ObjectStore {
	return &ObjectStore{
		db:         db,
		bucketName: bucketName,
		baseURL:    baseURL,
		secret:     secret,
		urlTTL:     urlTTL,
	}
}

// Bucket names the GridFS bucket; uploads finalize as inserts on "<Bucket>.files".
func (s *ObjectStore) Bucket() string {
	return s.bucketName
}

// Object is an open download with its stored attributes.
type Object struct {
	io.ReadCloser
	Name        string
	ContentType string
	Length      int64
	UploadDate  time.Time
}

// bucket builds a bucket per call; GridFS deadlines are per bucket, not per operation.
func (s *ObjectStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	b, err := gridfs.NewBucket(s.db, options.GridFSBucket().SetName(s.bucketName))
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", s.bucketName, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = b.SetReadDeadline(deadline)
		_ = b.SetWriteDeadline(deadline)
	}
	return b, nil
}

// Upload stores r under name. The files document is written after all chunks,
// which is what finalize triggers observe.
func (s *ObjectStore) Upload(ctx context.Context, name string, r io.Reader, contentType string, metadata map[string]string) error {
	b, err := s.bucket(ctx)
	if err != nil {
		return err
	}

	meta := bson.M{"contentType": contentType}
	for k, v := range metadata {
		meta[k] = v
	}

	id, err := b.UploadFromStream(name, r, options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		logrus.WithError(err).WithField("object", name).Error("Failed to upload object")
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{"object": name, "fileID": id.Hex()}).Info("Object uploaded")
	return nil
}

// Download writes the latest revision of name to w.
func (s *ObjectStore) Download(ctx context.Context, name string, w io.Writer) error {
	b, err := s.bucket(ctx)
	if err != nil {
		return err
	}
	if _, err := b.DownloadToStreamByName(name, w); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	return nil
}

// Open starts a streaming download of the latest revision of name.
func (s *ObjectStore) Open(ctx context.Context, name string) (*Object, error) {
	b, err := s.bucket(ctx)
	if err != nil {
		return nil, err
	}
	ds, err := b.OpenDownloadStreamByName(name)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}

	file := ds.GetFile()
	obj := &Object{
		ReadCloser: ds,
		Name:       file.Name,
		Length:     file.Length,
		UploadDate: file.UploadDate,
	}
	if file.Metadata != nil {
		obj.ContentType, _ = file.Metadata.Lookup("contentType").StringValueOK()
	}
	return obj, nil
}

// SignedURL returns a read URL for name that stays valid for the store's URL TTL.
func (s *ObjectStore) SignedURL(name string) (string, error) {
	token, err := jwtutil.SignObject(name, s.secret, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", name, err)
	}
	return ObjectURL(s.baseURL, name, token), nil
}

// ObjectURL builds the public URL served by the object handler.
func ObjectURL(baseURL, name, token string) string {
	u := url.URL{Path: "/objects/" + name}
	return baseURL + u.EscapedPath() + "?token=" + url.QueryEscape(token)
}
