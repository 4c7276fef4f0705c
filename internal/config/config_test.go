package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PROFILE_IMAGE_PREFIX", "")
	t.Setenv("THUMBNAIL_SIZE", "")
	t.Setenv("COMMENT_COUNT_DEDUPE", "")
	t.Setenv("REACTOR_TIMEOUT", "")
	t.Setenv("RECONCILE_SETTLE", "")

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "profile_images", cfg.ProfileImagePrefix)
	assert.Equal(t, 200, cfg.ThumbnailSize)
	assert.True(t, cfg.DedupeCommentCounts)
	assert.Equal(t, 60*time.Second, cfg.ReactorTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileSettle)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PROFILE_IMAGE_PREFIX", "/avatars/")
	t.Setenv("THUMBNAIL_SIZE", "128")
	t.Setenv("COMMENT_COUNT_DEDUPE", "false")
	t.Setenv("REACTOR_TIMEOUT", "5s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PUBLIC_BASE_URL", "https://api.example/")

	cfg := LoadConfig()

	assert.Equal(t, "avatars", cfg.ProfileImagePrefix)
	assert.Equal(t, 128, cfg.ThumbnailSize)
	assert.False(t, cfg.DedupeCommentCounts)
	assert.Equal(t, 5*time.Second, cfg.ReactorTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "https://api.example", cfg.PublicBaseURL)
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("THUMBNAIL_SIZE", "big")
	t.Setenv("REACTOR_TIMEOUT", "soon")

	cfg := LoadConfig()

	assert.Equal(t, 200, cfg.ThumbnailSize)
	assert.Equal(t, 60*time.Second, cfg.ReactorTimeout)
}
