package reactors

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Dias221467/closure-backend/internal/thumbnail"
	"github.com/Dias221467/closure-backend/internal/trigger"
	"github.com/sirupsen/logrus"
)

const resizedDir = "resized"

type AvatarOptions struct {
	// Prefix is the object path prefix for profile images, without slashes.
	Prefix     string
	Size       int
	ScratchDir string
	Timeout    time.Duration
}

// AvatarResizer turns uploaded profile images into square thumbnails and points
// the owner's avatarUrl at them.
type AvatarResizer struct {
	objects ObjectStore
	users   AvatarWriter
	opts    AvatarOptions
}

func NewAvatarResizer(objects ObjectStore, users AvatarWriter, opts AvatarOptions) *AvatarResizer {
	if opts.Size <= 0 {
		opts.Size = 200
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &AvatarResizer{objects: objects, users: users, opts: opts}
}

// ThumbnailPath is where the thumbnail of name is stored: <dir>/resized/thumb_<file>.
// Extensions the encoder cannot write are replaced by ".png", the format used instead.
func ThumbnailPath(name string) string {
	dir, file := path.Split(name)
	if ext := path.Ext(file); !thumbnail.Encodable(ext) {
		file = strings.TrimSuffix(file, ext) + ".png"
	}
	return dir + resizedDir + "/thumb_" + file
}

// Handle reacts to a finished upload. Objects that are not profile images, that
// are already thumbnails, or that carry no owner are ignored.
func (a *AvatarResizer) Handle(ctx context.Context, ev trigger.ObjectEvent) error {
	log := logrus.WithFields(logrus.Fields{"object": ev.Name, "contentType": ev.ContentType})

	userID, reason := a.accept(ev)
	if reason != "" {
		log.WithField("reason", reason).Debug("Object ignored by avatar resizer")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	if err := a.resize(ctx, ev, userID); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"userID": userID, "thumbnail": ThumbnailPath(ev.Name)}).Info("Avatar updated")
	return nil
}

// accept runs the guard chain and returns the owning user id, or the reason the
// object was rejected.
func (a *AvatarResizer) accept(ev trigger.ObjectEvent) (string, string) {
	switch {
	case ev.Name == "" || ev.ContentType == "":
		return "", "missing name or content type"
	case !strings.HasPrefix(ev.ContentType, "image/"):
		return "", "not an image"
	case !strings.HasPrefix(ev.Name, a.opts.Prefix+"/"):
		return "", "outside profile image prefix"
	case isResized(ev.Name):
		return "", "already resized"
	}

	userID := ev.Metadata["userId"]
	if userID == "" {
		logrus.WithField("object", ev.Name).Info("Profile image has no userId metadata, skipping")
		return "", "missing userId metadata"
	}
	return userID, ""
}

func isResized(name string) bool {
	return strings.Contains("/"+path.Dir(name)+"/", "/"+resizedDir+"/")
}

func (a *AvatarResizer) resize(ctx context.Context, ev trigger.ObjectEvent, userID string) error {
	scratch, err := os.MkdirTemp(a.opts.ScratchDir, "avatar-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logrus.WithError(err).WithField("dir", scratch).Warn("Failed to remove scratch dir")
		}
	}()

	ext := strings.ToLower(path.Ext(ev.Name))
	original := filepath.Join(scratch, "original"+ext)
	if err := a.download(ctx, ev.Name, original); err != nil {
		return err
	}

	thumbName := ThumbnailPath(ev.Name)
	outExt := strings.ToLower(path.Ext(thumbName))
	thumbFile := filepath.Join(scratch, "thumb"+outExt)
	if err := thumbnail.Make(original, thumbFile, a.opts.Size); err != nil {
		return err
	}

	if err := a.upload(ctx, thumbFile, thumbName, contentTypeFor(outExt), userID); err != nil {
		return err
	}

	url, err := a.objects.SignedURL(thumbName)
	if err != nil {
		return err
	}

	if err := a.users.SetAvatarURL(ctx, userID, url); err != nil {
		return fmt.Errorf("failed to update avatar of user %s: %w", userID, err)
	}
	return nil
}

func (a *AvatarResizer) download(ctx context.Context, name, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer f.Close()

	if err := a.objects.Download(ctx, name, f); err != nil {
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	return f.Close()
}

func (a *AvatarResizer) upload(ctx context.Context, src, name, contentType, userID string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open thumbnail: %w", err)
	}
	defer f.Close()

	return a.objects.Upload(ctx, name, f, contentType, map[string]string{"userId": userID})
}

func contentTypeFor(ext string) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "image/" + strings.TrimPrefix(ext, ".")
}
